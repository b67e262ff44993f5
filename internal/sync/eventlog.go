package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Playback event types, keyed by session id.
const (
	SessionStarted     = "session_started"
	SegmentRequested   = "segment_requested"
	BreakpointReached  = "breakpoint_reached"
	BreakpointAnswered = "breakpoint_answered"
	LessonCompleted    = "lesson_completed"
	SessionReset       = "session_reset"
)

type Event struct {
	Offset    int64           `json:"offset"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	DataJSON  json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// Log is what producers of playback events depend on.
type Log interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, key string) ([]Event, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	data := string(e.DataJSON)
	if data == "" {
		data = "{}"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, data, time.Now().Unix())
	return err
}

// List returns the events for key in append order.
func (r *EventRepo) List(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			data string
		)
		if err := rows.Scan(&e.Offset, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DataJSON = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// NewEvent marshals data into an event for key.
func NewEvent(typ, key string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Key: key, DataJSON: raw}, nil
}
