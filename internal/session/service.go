// Package session runs playback engines for many learners. Each call loads
// the session, rebuilds the lesson's segment map, applies one event and
// persists the resulting state. Calls for the same session are serialized.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/metrics"
	"github.com/mind-engage/mindengage-lessons/internal/playback"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
)

// Outcome is what the player needs after an event.
type Outcome struct {
	Session    Session                      `json:"session"`
	Request    *playback.Request            `json:"request,omitempty"`
	Breakpoint *scenario.BreakpointQuestion `json:"breakpoint,omitempty"`
	Ended      bool                         `json:"ended"`
	Ignored    bool                         `json:"ignored,omitempty"`
}

type Service struct {
	lessons  lesson.Store
	sessions Store
	events   syncx.Log
	metrics  *metrics.Metrics
	logger   *zap.Logger

	locks keyedMutex
	subs  broadcaster
	now   func() time.Time
}

type Option func(*Service)

func WithEventLog(l syncx.Log) Option       { return func(s *Service) { s.events = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(lessons lesson.Store, sessions Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		lessons:  lessons,
		sessions: sessions,
		logger:   logger.Named("session"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens a session at main segment 1. A lesson without main segments
// ends immediately.
func (s *Service) Start(ctx context.Context, lessonID, learnerID string) (Outcome, error) {
	l, err := s.lessons.Get(ctx, lessonID)
	if err != nil {
		return Outcome{}, err
	}
	m := s.build(l)
	now := s.now().Unix()
	sess := Session{
		ID:            uuid.NewString(),
		LessonID:      l.ID,
		LessonVersion: l.Version,
		LearnerID:     learnerID,
		State:         playback.Initial(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.append(ctx, syncx.SessionStarted, sess.ID, map[string]any{
		"lesson_id": l.ID, "lesson_version": l.Version, "learner_id": learnerID,
	})
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
	}

	var eff playback.Effect
	if m.Len(segment.MainKey) == 0 {
		sess.State, eff = s.dispatch(m, sess.State, playback.Event{Type: playback.EventFinished})
	} else {
		first := playback.Request{ListKey: segment.MainKey, SegmentNumber: 1}
		eff = playback.Effect{Request: &first}
		s.countSegment(first)
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return Outcome{}, fmt.Errorf("create session: %w", err)
	}
	out := s.record(ctx, sess, playback.Event{}, eff)
	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("lesson_id", l.ID),
		zap.String("learner_id", learnerID))
	return out, nil
}

func (s *Service) SegmentFinished(ctx context.Context, id string) (Outcome, error) {
	return s.Apply(ctx, id, playback.Event{Type: playback.EventFinished})
}

func (s *Service) AnswerBreakpoint(ctx context.Context, id string, index int) (Outcome, error) {
	return s.Apply(ctx, id, playback.Event{Type: playback.EventAnswer, Index: index})
}

func (s *Service) Reset(ctx context.Context, id string) (Outcome, error) {
	return s.Apply(ctx, id, playback.Event{Type: playback.EventReset})
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.sessions.Get(ctx, id)
}

// Events returns the playback log of a session, oldest first.
func (s *Service) Events(ctx context.Context, id string) ([]syncx.Event, error) {
	if s.events == nil {
		return []syncx.Event{}, nil
	}
	return s.events.List(ctx, id)
}

// Apply runs one event against a stored session. If the lesson was edited
// since the session started, the old position is meaningless: the session
// restarts at main segment 1 and the event is dropped.
func (s *Service) Apply(ctx context.Context, id string, ev playback.Event) (Outcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	l, err := s.lessons.Get(ctx, sess.LessonID)
	if err != nil {
		if errors.Is(err, lesson.ErrNotFound) {
			return Outcome{}, fmt.Errorf("session %s: %w", id, err)
		}
		return Outcome{}, err
	}
	m := s.build(l)

	var eff playback.Effect
	if l.Version != sess.LessonVersion && ev.Type != playback.EventReset {
		s.logger.Info("lesson changed under session, restarting",
			zap.String("session_id", id),
			zap.Int("from_version", sess.LessonVersion),
			zap.Int("to_version", l.Version))
		s.append(ctx, syncx.SessionReset, id, map[string]any{"reason": "lesson_changed", "lesson_version": l.Version})
		sess.State, eff = s.dispatch(m, sess.State, playback.Event{Type: playback.EventReset})
		ev = playback.Event{}
	} else {
		sess.State, eff = s.dispatch(m, sess.State, ev)
	}
	sess.LessonVersion = l.Version
	sess.UpdatedAt = s.now().Unix()

	if !eff.Ignored {
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Error("save session", zap.String("session_id", id), zap.Error(err))
			return Outcome{}, fmt.Errorf("save session: %w", err)
		}
	}
	return s.record(ctx, sess, ev, eff), nil
}

// dispatch drives a restored engine for one event.
func (s *Service) dispatch(m segment.Map, st playback.State, ev playback.Event) (playback.State, playback.Effect) {
	opts := []playback.Option{playback.WithLogger(s.logger)}
	if s.metrics != nil {
		opts = append(opts, playback.OnEnded(s.metrics.Completions.Inc))
	}
	e := playback.Restore(m, st, func(n int, typ string) {
		key := typ
		if key == "" {
			key = segment.MainKey
		}
		s.countSegment(playback.Request{ListKey: key, SegmentNumber: n})
	}, opts...)
	eff, err := e.Dispatch(ev)
	if err != nil {
		// Restore always yields a usable engine; keep the state as is.
		s.logger.Error("dispatch", zap.Error(err))
		return st, playback.Effect{Ignored: true}
	}
	return e.State(), eff
}

// build rebuilds the segment map for every call so sessions never share one.
func (s *Service) build(l lesson.Lesson) segment.Map {
	start := time.Now()
	m := segment.Build(l.Scenario.Script)
	if s.metrics != nil {
		s.metrics.MapBuilds.Inc()
		s.metrics.MapBuildSeconds.Observe(time.Since(start).Seconds())
	}
	return m
}

func (s *Service) countSegment(r playback.Request) {
	if s.metrics != nil {
		s.metrics.SegmentRequests.WithLabelValues(metrics.Line(r.ListKey)).Inc()
	}
}

// record writes the event log, updates counters and notifies subscribers.
func (s *Service) record(ctx context.Context, sess Session, ev playback.Event, eff playback.Effect) Outcome {
	out := Outcome{Session: sess, Request: eff.Request, Breakpoint: eff.Breakpoint, Ended: eff.Ended || sess.State.HasEnded, Ignored: eff.Ignored}
	if eff.Ignored {
		return out
	}
	switch ev.Type {
	case playback.EventAnswer:
		if a := sess.State.LastAnswer; a != nil {
			branched := sess.State.ListKey != segment.MainKey
			s.append(ctx, syncx.BreakpointAnswered, sess.ID, map[string]any{
				"option_index": a.OptionIndex, "is_correct": a.IsCorrect, "branch_target": a.BranchTarget, "branched": branched,
			})
			if s.metrics != nil {
				s.metrics.Answers.WithLabelValues(metrics.Bool(a.IsCorrect), metrics.Bool(branched)).Inc()
			}
		}
	case playback.EventReset:
		s.append(ctx, syncx.SessionReset, sess.ID, map[string]any{"reason": "requested"})
		if s.metrics != nil {
			s.metrics.Resets.Inc()
		}
	}
	if eff.Breakpoint != nil {
		s.append(ctx, syncx.BreakpointReached, sess.ID, map[string]any{
			"segment_number": sess.State.SegmentNumber, "question": eff.Breakpoint.Question,
		})
		if s.metrics != nil {
			s.metrics.BreakpointsReached.Inc()
		}
	}
	if eff.Request != nil {
		s.append(ctx, syncx.SegmentRequested, sess.ID, eff.Request)
	}
	if eff.Ended {
		s.append(ctx, syncx.LessonCompleted, sess.ID, map[string]any{"lesson_id": sess.LessonID})
	}
	s.subs.publish(sess.ID, out)
	return out
}

func (s *Service) append(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	ev, err := syncx.NewEvent(typ, key, data)
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		s.logger.Error("append event", zap.String("type", typ), zap.String("session_id", key), zap.Error(err))
	}
}

// Subscribe delivers every outcome of session id until cancel is called.
// Slow subscribers miss outcomes rather than block playback.
func (s *Service) Subscribe(id string) (<-chan Outcome, func()) {
	return s.subs.subscribe(id)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refMutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan Outcome]struct{}
}

func (b *broadcaster) subscribe(id string) (<-chan Outcome, func()) {
	ch := make(chan Outcome, 8)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = map[string]map[chan Outcome]struct{}{}
	}
	if b.subs[id] == nil {
		b.subs[id] = map[chan Outcome]struct{}{}
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[id], ch)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broadcaster) publish(id string, out Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[id] {
		select {
		case ch <- out:
		default:
		}
	}
}
