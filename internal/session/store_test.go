package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/playback"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/session"
)

func exerciseStore(t *testing.T, s session.Store, lessonID string) {
	ctx := context.Background()
	sess := session.Session{
		ID:            uuid.NewString(),
		LessonID:      lessonID,
		LessonVersion: 1,
		LearnerID:     "learner-1",
		State:         playback.Initial(),
		CreatedAt:     100,
		UpdatedAt:     100,
	}
	require.NoError(t, s.Create(ctx, sess))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	sess.State.AtBreakpoint = true
	sess.State.Playing = false
	sess.State.Breakpoint = &scenario.BreakpointQuestion{Question: "Q", Options: []scenario.BreakpointOption{{Text: "a"}}}
	sess.LessonVersion = 2
	sess.UpdatedAt = 200
	require.NoError(t, s.Save(ctx, sess))

	got, err = s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, s.Save(ctx, session.Session{ID: "missing"}), session.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, session.NewInMemoryStore(), "l1")
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer conn.Close()
	l, err := lesson.NewSQLStore(conn).Put(ctx, lesson.Lesson{Scenario: scenario.Scenario{Title: "t"}})
	require.NoError(t, err)

	exerciseStore(t, session.NewSQLStore(conn), l.ID)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	s := session.NewRedisStore(client, time.Minute, zap.NewNop())
	exerciseStore(t, s, "l1")
}

func TestSession_CheckOwner(t *testing.T) {
	s := session.Session{ID: "s1", LearnerID: "ana"}
	assert.NoError(t, s.CheckOwner("ana", false))
	assert.ErrorIs(t, s.CheckOwner("bo", false), session.ErrForbidden)
	assert.ErrorIs(t, s.CheckOwner("", false), session.ErrForbidden)
	assert.NoError(t, s.CheckOwner("bo", true))
}
