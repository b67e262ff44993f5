package playback

import (
	"github.com/mind-engage/mindengage-lessons/internal/segment"
)

// Transition is the playback reducer. It is total: any map, state and event
// yield a well-defined next state.
func Transition(m segment.Map, s State, ev Event) (State, Effect) {
	switch ev.Type {
	case EventReset:
		next := Initial()
		return next, Effect{Request: request(next)}
	case EventFinished:
		return finished(m, s)
	case EventAnswer:
		return answered(m, s, ev.Index)
	default:
		return s, Effect{Ignored: true}
	}
}

func finished(m segment.Map, s State) (State, Effect) {
	if s.HasEnded || s.AtBreakpoint {
		return s, Effect{Ignored: true}
	}
	if seg, ok := m.Lookup(s.ListKey, s.SegmentNumber); ok && seg.HasBreakpoint {
		s.AtBreakpoint = true
		s.Breakpoint = seg.Breakpoint
		s.Playing = false
		return s, Effect{Breakpoint: seg.Breakpoint}
	}
	return advance(m, s)
}

func answered(m segment.Map, s State, idx int) (State, Effect) {
	if s.HasEnded || !s.AtBreakpoint {
		return s, Effect{Ignored: true}
	}
	var target string
	s.LastAnswer = &Answer{OptionIndex: idx}
	if bp := s.Breakpoint; bp != nil && idx >= 0 && idx < len(bp.Options) {
		opt := bp.Options[idx]
		target = opt.BranchTarget
		s.LastAnswer.IsCorrect = opt.IsCorrect
		s.LastAnswer.BranchTarget = opt.BranchTarget
	}
	s.AtBreakpoint = false
	s.Breakpoint = nil

	if s.ListKey == segment.MainKey && target != "" && target != segment.MainKey && m.Len(target) > 0 {
		s.BranchedFromMainSegment = s.SegmentNumber
		s.ListKey = target
		s.SegmentNumber = 1
		s.Playing = true
		return s, Effect{Request: request(s)}
	}
	return advance(m, s)
}

// advance moves past the current segment: next in the same list, then back
// to main right after the branching segment, then Ended.
func advance(m segment.Map, s State) (State, Effect) {
	if _, ok := m.Lookup(s.ListKey, s.SegmentNumber+1); ok {
		s.SegmentNumber++
		s.Playing = true
		return s, Effect{Request: request(s)}
	}
	if s.ListKey != segment.MainKey {
		resume := s.BranchedFromMainSegment + 1
		if _, ok := m.Lookup(segment.MainKey, resume); ok {
			s.ListKey = segment.MainKey
			s.SegmentNumber = resume
			s.BranchedFromMainSegment = 0
			s.Playing = true
			return s, Effect{Request: request(s)}
		}
	}
	s.HasEnded = true
	s.Playing = false
	return s, Effect{Ended: true}
}

func request(s State) *Request {
	return &Request{ListKey: s.ListKey, SegmentNumber: s.SegmentNumber}
}
