package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-lessons/internal/api/http"
	auth "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/config"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/render"
	"github.com/mind-engage/mindengage-lessons/internal/session"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	if cfg.AdminPassHash != "" {
		created, err := auth.EnsureAdmin(openCtx, dbh, cfg.AdminUser, cfg.AdminPassHash)
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap admin created", zap.String("username", cfg.AdminUser))
		}
	}

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := sessionStore(openCtx, cfg, dbh, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	pub, closePub, err := renderPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePub()

	m := metrics.New()
	lessons := lesson.NewSQLStore(dbh)
	svc := session.NewService(lessons, sessions, log,
		session.WithEventLog(syncx.NewEventRepo(dbh, "")),
		session.WithMetrics(m))

	router := api.NewRouter(api.Deps{
		Auth:        auth.NewAuthService(cfg.AuthHMACSecret),
		DB:          dbh,
		Lessons:     lessons,
		Sessions:    svc,
		Blobs:       blobs,
		Renders:     pub,
		Metrics:     m,
		Logger:      log,
		Ready:       dbh.PingContext,
		LocalAuth:   cfg.EnableLocalAuth,
		GuestAuth:   cfg.EnableGuestAuth,
		DevLogin:    cfg.Mode == config.ModeOffline,
		CORSOrigins: cfg.CORSOrigins,
		WSEnabled:   cfg.WSEnabled,

		MaxMediaBytes: cfg.MediaMaxBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.String("sessions", cfg.SessionBackend))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func sessionStore(ctx context.Context, cfg config.Config, dbh *sql.DB, log *zap.Logger) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionMemory:
		return session.NewInMemoryStore(), func() {}, nil
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return session.NewRedisStore(client, cfg.SessionTTL, log), func() { _ = client.Close() }, nil
	default:
		return session.NewSQLStore(dbh), func() {}, nil
	}
}

// renderPublisher sends render jobs to the media service queue, or only
// logs them when no broker is configured.
func renderPublisher(cfg config.Config, log *zap.Logger) (render.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set, render jobs will only be logged")
		return render.NewLogPublisher(log), func() {}, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	pub, err := render.NewAMQPPublisher(conn, cfg.RenderQueue, log)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return pub, func() {
		_ = pub.Close()
		_ = conn.Close()
	}, nil
}
