package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	SessionSQL    = "sql"
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

type Config struct {
	Mode      Mode   `envconfig:"MODE" default:"offline"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	PublicURL string `envconfig:"PUBLIC_URL"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN"`

	BlobBasePath string `envconfig:"BLOB_BASE_PATH" default:"./data"`

	// Largest accepted segment media upload.
	MediaMaxBytes int64 `envconfig:"MEDIA_MAX_BYTES" default:"536870912"`

	// Where playback sessions live: sql|memory|redis.
	SessionBackend string        `envconfig:"SESSION_BACKEND" default:"sql"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"72h"`

	// Empty AMQPURL logs render jobs instead of publishing them.
	AMQPURL     string `envconfig:"AMQP_URL"`
	RenderQueue string `envconfig:"RENDER_QUEUE" default:"segment_render_jobs"`

	AuthHMACSecret  string   `envconfig:"AUTH_HMAC_SECRET" default:"dev-secret-change-me"`
	EnableLocalAuth bool     `envconfig:"ENABLE_LOCAL_AUTH" default:"true"`
	EnableGuestAuth bool     `envconfig:"ENABLE_GUEST_AUTH" default:"false"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:3010"`
	WSEnabled       bool     `envconfig:"WS_ENABLED" default:"true"`

	// Seeded on startup when AdminPassHash (bcrypt) is set.
	AdminUser     string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPassHash string `envconfig:"ADMIN_PASS_HASH"`
}

// Load reads an optional .env file (DOTENV_PATH, default ".env") and then
// the process environment. Real environment variables win.
func Load() (Config, error) {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("config: MODE %q must be offline or online", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: DB_DRIVER %q must be sqlite or postgres", c.DBDriver)
	}
	switch c.SessionBackend {
	case SessionSQL, SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("config: SESSION_BACKEND %q must be sql, memory or redis", c.SessionBackend)
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "dev-secret-change-me" {
		return errors.New("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	return nil
}
