package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

type push struct {
	Type          string `json:"type"`
	SegmentNumber int    `json:"segment_number"`
	SegmentType   string `json:"segment_type"`
	Question      string `json:"question"`
	Message       string `json:"message"`
}

func readPush(t *testing.T, conn *websocket.Conn) push {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var p push
	require.NoError(t, conn.ReadJSON(&p))
	return p
}

func TestSessionSocket_Playthrough(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	c := e.createLesson(e.token("ana", rbac.RoleInstructor))
	cy := e.token("cy", rbac.RoleLearner)
	id := decode[outcome](t, e.do(http.MethodPost, "/lessons/"+c.ID+"/sessions", cy, "")).Session.ID

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws?access_token=" + cy
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	assert.Equal(t, push{Type: "segment", SegmentNumber: 1}, readPush(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "finished"}))
	assert.Equal(t, push{Type: "segment", SegmentNumber: 2}, readPush(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "finished"}))
	bp := readPush(t, conn)
	assert.Equal(t, "breakpoint", bp.Type)
	assert.Equal(t, "What now?", bp.Question)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "answer", "index": 0}))
	assert.Equal(t, push{Type: "segment", SegmentNumber: 1, SegmentType: "option_A"}, readPush(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "answer", "index": 1}))
	assert.Equal(t, "ignored", readPush(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "rewind"}))
	assert.Equal(t, "error", readPush(t, conn).Type)

	// outcomes caused over REST reach the socket too
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/sessions/"+id+"/finished", cy, "").Code)
	assert.Equal(t, push{Type: "segment", SegmentNumber: 2, SegmentType: "option_A"}, readPush(t, conn))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "finished"}))
	assert.Equal(t, push{Type: "segment", SegmentNumber: 3}, readPush(t, conn))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "finished"}))
	assert.Equal(t, "ended", readPush(t, conn).Type)
}

func TestSessionSocket_Rejects(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	c := e.createLesson(e.token("ana", rbac.RoleInstructor))
	id := decode[outcome](t, e.do(http.MethodPost, "/lessons/"+c.ID+"/sessions", e.token("cy", rbac.RoleLearner), "")).Session.ID
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?access_token="+e.token("dee", rbac.RoleLearner), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(base+"?access_token="+e.token("cy", rbac.RoleLearner), hdr)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
