package playback

import (
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
)

type Phase string

const (
	PlayingMain   Phase = "playing_main"
	PlayingBranch Phase = "playing_branch"
	AtBreakpoint  Phase = "at_breakpoint"
	Ended         Phase = "ended"
)

// Answer records the option a learner picked at the last breakpoint.
// IsCorrect is informational only.
type Answer struct {
	OptionIndex  int    `json:"option_index"`
	IsCorrect    bool   `json:"is_correct"`
	BranchTarget string `json:"branch_target,omitempty"`
}

// State is where a learner is in a lesson. It is a plain value: persist it,
// copy it, and hand it back to Restore.
type State struct {
	ListKey       string                       `json:"current_list_key"`
	SegmentNumber int                          `json:"current_segment_number"`
	AtBreakpoint  bool                         `json:"is_at_breakpoint"`
	Breakpoint    *scenario.BreakpointQuestion `json:"current_breakpoint,omitempty"`
	Playing       bool                         `json:"is_playing"`
	HasEnded      bool                         `json:"has_ended"`
	// BranchedFromMainSegment is the main segment whose breakpoint sent the
	// learner into the current branch; 0 while on the main line.
	BranchedFromMainSegment int     `json:"branched_from_main_segment,omitempty"`
	LastAnswer              *Answer `json:"last_answer,omitempty"`
}

// Initial is main segment 1, playing.
func Initial() State {
	return State{ListKey: segment.MainKey, SegmentNumber: 1, Playing: true}
}

func (s State) Phase() Phase {
	switch {
	case s.HasEnded:
		return Ended
	case s.AtBreakpoint:
		return AtBreakpoint
	case s.ListKey != segment.MainKey:
		return PlayingBranch
	default:
		return PlayingMain
	}
}

// Request names the segment the player should load next.
type Request struct {
	ListKey       string `json:"list_key"`
	SegmentNumber int    `json:"segment_number"`
}

// SegmentType is the branch type, or "" on the main line.
func (r Request) SegmentType() string {
	if r.ListKey == segment.MainKey {
		return ""
	}
	return r.ListKey
}

type EventType string

const (
	EventFinished EventType = "finished"
	EventAnswer   EventType = "answer"
	EventReset    EventType = "reset"
)

type Event struct {
	Type EventType `json:"type"`
	// Index is the selected option for EventAnswer.
	Index int `json:"index,omitempty"`
}

// Effect is what a transition asks of the caller.
type Effect struct {
	// Request is set when a new segment must be loaded.
	Request *Request
	// Breakpoint is set when playback paused on a question.
	Breakpoint *scenario.BreakpointQuestion
	// Ended is set on the transition into Ended.
	Ended bool
	// Ignored means the event did not apply in the current phase.
	Ignored bool
}
