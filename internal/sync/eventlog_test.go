package syncx_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lessons/internal/db"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

func TestEventRepo_AppendList(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer conn.Close()

	repo := syncx.NewEventRepo(conn, "")
	ev, err := syncx.NewEvent(syncx.SessionStarted, "s1", map[string]string{"lesson_id": "l1"})
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, ev))
	ev, err = syncx.NewEvent(syncx.BreakpointAnswered, "s1", map[string]any{"option_index": 1, "is_correct": false})
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, ev))
	require.NoError(t, repo.Append(ctx, syncx.Event{Type: syncx.SessionStarted, Key: "s2"}))

	got, err := repo.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, syncx.SessionStarted, got[0].Type)
	assert.Equal(t, syncx.BreakpointAnswered, got[1].Type)
	assert.Less(t, got[0].Offset, got[1].Offset)
	assert.Equal(t, "local", got[0].SiteID)
	assert.JSONEq(t, `{"lesson_id":"l1"}`, string(got[0].DataJSON))

	other, err := repo.List(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.JSONEq(t, `{}`, string(other[0].DataJSON))

	none, err := repo.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}
