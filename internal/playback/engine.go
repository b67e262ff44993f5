// Package playback drives a learner through a segment map: it decides after
// each segment whether to pause on a question, enter a branch, resume the
// main line or finish.
//
// The engine never touches media. It reports which segment to load through
// the onSegmentChange callback and expects the caller to report back when
// that segment finished or a question was answered. An Engine is not safe
// for concurrent use; give each learner session its own.
package playback

import (
	"errors"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/segment"
)

// ErrPrecondition is returned when an Engine is used without New or Restore.
var ErrPrecondition = errors.New("playback: engine not initialized")

// SegmentChangeFunc receives the next segment to play. segmentType is ""
// for the main line.
type SegmentChangeFunc func(segmentNumber int, segmentType string)

type Engine struct {
	segments        segment.Map
	state           State
	onSegmentChange SegmentChangeFunc
	onEnded         func()
	log             *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l.Named("playback")
		}
	}
}

// OnEnded registers fn to run once per transition into Ended.
func OnEnded(fn func()) Option {
	return func(e *Engine) { e.onEnded = fn }
}

// New starts at main segment 1. The caller loads that segment itself; the
// callback fires only for later changes.
func New(m segment.Map, onSegmentChange SegmentChangeFunc, opts ...Option) *Engine {
	return Restore(m, Initial(), onSegmentChange, opts...)
}

// Restore resumes an engine from a saved state, as a session store does
// between requests.
func Restore(m segment.Map, st State, onSegmentChange SegmentChangeFunc, opts ...Option) *Engine {
	e := &Engine{
		segments:        m,
		state:           st,
		onSegmentChange: onSegmentChange,
		log:             zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) SegmentFinished() (Effect, error) {
	return e.Dispatch(Event{Type: EventFinished})
}

func (e *Engine) BreakpointAnswered(index int) (Effect, error) {
	return e.Dispatch(Event{Type: EventAnswer, Index: index})
}

func (e *Engine) Reset() (Effect, error) {
	return e.Dispatch(Event{Type: EventReset})
}

// Dispatch applies ev and notifies the callbacks.
func (e *Engine) Dispatch(ev Event) (Effect, error) {
	if e == nil || e.segments == nil {
		return Effect{}, ErrPrecondition
	}
	prev := e.state
	next, eff := Transition(e.segments, prev, ev)
	e.state = next

	if eff.Ignored {
		e.log.Debug("event ignored",
			zap.String("event", string(ev.Type)),
			zap.String("phase", string(prev.Phase())))
		return eff, nil
	}
	e.log.Debug("transition",
		zap.String("event", string(ev.Type)),
		zap.String("from", string(prev.Phase())),
		zap.String("to", string(next.Phase())),
		zap.String("list", next.ListKey),
		zap.Int("segment", next.SegmentNumber))

	if eff.Request != nil && e.onSegmentChange != nil {
		e.onSegmentChange(eff.Request.SegmentNumber, eff.Request.SegmentType())
	}
	if eff.Ended && e.onEnded != nil {
		e.onEnded()
	}
	return eff, nil
}

// State returns a copy of the current playback state.
func (e *Engine) State() State {
	if e == nil {
		return State{}
	}
	return e.state
}

// Current is the segment the learner is on (or last played, once ended).
func (e *Engine) Current() Request {
	return Request{ListKey: e.State().ListKey, SegmentNumber: e.State().SegmentNumber}
}

// Segment looks up the current segment in the map.
func (e *Engine) Segment() (segment.Segment, bool) {
	if e == nil {
		return segment.Segment{}, false
	}
	return e.segments.Lookup(e.state.ListKey, e.state.SegmentNumber)
}
