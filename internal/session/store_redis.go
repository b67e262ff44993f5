package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps sessions as JSON values that expire after ttl of
// inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger.Named("RedisSessionStore")}
}

func sessionKey(id string) string { return fmt.Sprintf("playback_session:%s", id) }

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, sessionKey(s.ID), body, r.ttl).Result()
	if err != nil {
		r.logger.Error("create session", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}
	if !ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	body, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		r.logger.Error("get session", zap.String("session_id", id), zap.Error(err))
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// Save overwrites an existing session and refreshes its ttl.
func (r *RedisStore) Save(ctx context.Context, s Session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, sessionKey(s.ID), body, r.ttl).Result()
	if err != nil {
		r.logger.Error("save session", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
