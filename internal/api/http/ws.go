package http

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/playback"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	eventTimeout   = 15 * time.Second
)

// wsMessage is what the player sends: {"type":"finished"|"answer"|"reset","index":n}.
type wsMessage struct {
	Type  playback.EventType `json:"type"`
	Index int                `json:"index"`
}

type segmentPush struct {
	Type          string `json:"type"`
	SegmentNumber int    `json:"segment_number"`
	SegmentType   string `json:"segment_type"`
}

type breakpointPush struct {
	Type string `json:"type"`
	*scenario.BreakpointQuestion
}

type statusPush struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// outcomePushes turns one playback outcome into the messages the player
// acts on, in order.
func outcomePushes(out session.Outcome) []any {
	var msgs []any
	if out.Request != nil {
		msgs = append(msgs, segmentPush{Type: "segment", SegmentNumber: out.Request.SegmentNumber, SegmentType: out.Request.SegmentType()})
	}
	if out.Breakpoint != nil {
		msgs = append(msgs, breakpointPush{Type: "breakpoint", BreakpointQuestion: out.Breakpoint})
	}
	if out.Ended {
		msgs = append(msgs, statusPush{Type: "ended"})
	}
	return msgs
}

// statePushes tells a newly connected player where the session stands.
func statePushes(st playback.State) []any {
	switch st.Phase() {
	case playback.Ended:
		return []any{statusPush{Type: "ended"}}
	case playback.AtBreakpoint:
		if st.Breakpoint != nil {
			return []any{breakpointPush{Type: "breakpoint", BreakpointQuestion: st.Breakpoint}}
		}
	}
	r := playback.Request{ListKey: st.ListKey, SegmentNumber: st.SegmentNumber}
	return []any{segmentPush{Type: "segment", SegmentNumber: r.SegmentNumber, SegmentType: r.SegmentType()}}
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || slices.Contains(origins, "*") || slices.Contains(origins, o)
		},
	}
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan any
	done   chan struct{}
	logger *zap.Logger
}

func (c *wsClient) queue(msgs ...any) {
	for _, m := range msgs {
		select {
		case c.send <- m:
		case <-c.done:
			return
		default:
			c.logger.Warn("player too slow, dropping message")
		}
	}
}

// GET /sessions/{id}/ws
//
// The socket carries playback events in and every outcome of the session
// out, including outcomes caused by other connections or the REST routes.
func SessionSocketHandler(svc *session.Service, origins []string, logger *zap.Logger) http.HandlerFunc {
	upgrader := newUpgrader(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authorizeSession(r, svc, permPlayAnySession)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade", zap.String("session_id", sess.ID), zap.Error(err))
			return
		}
		c := &wsClient{
			conn:   conn,
			send:   make(chan any, 16),
			done:   make(chan struct{}),
			logger: logger.With(zap.String("session_id", sess.ID)),
		}
		sub, unsubscribe := svc.Subscribe(sess.ID)
		go c.writePump(sub)
		c.queue(statePushes(sess.State)...)

		c.readPump(svc, sess.ID)
		close(c.done)
		unsubscribe()
	}
}

func (c *wsClient) readPump(svc *session.Service, id string) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		var (
			out session.Outcome
			err error
		)
		switch msg.Type {
		case playback.EventFinished:
			out, err = svc.SegmentFinished(ctx, id)
		case playback.EventAnswer:
			out, err = svc.AnswerBreakpoint(ctx, id, msg.Index)
		case playback.EventReset:
			out, err = svc.Reset(ctx, id)
		default:
			c.queue(statusPush{Type: "error", Message: "unknown message type"})
		}
		cancel()
		switch {
		case err != nil:
			c.logger.Error("apply event", zap.String("type", string(msg.Type)), zap.Error(err))
			c.queue(statusPush{Type: "error", Message: "event failed"})
		case out.Ignored:
			c.queue(statusPush{Type: "ignored"})
		}
	}
}

// writePump owns all writes to the connection. It stops when the
// subscription closes or a write fails.
func (c *wsClient) writePump(sub <-chan session.Outcome) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	write := func(v any) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteJSON(v) == nil
	}
	for {
		select {
		case out, ok := <-sub:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			for _, m := range outcomePushes(out) {
				if !write(m) {
					return
				}
			}
		case m := <-c.send:
			if !write(m) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
