// Package render hands segments to the external media service. One job is
// produced per segment; the service renders it to the job's media key.
package render

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
	"github.com/mind-engage/mindengage-lessons/internal/storage"
)

type Line struct {
	Role  string              `json:"role"`
	Text  string              `json:"text"`
	Voice string              `json:"voice,omitempty"`
	Image *scenario.ImageData `json:"image,omitempty"`
}

type Job struct {
	ID            string `json:"id"`
	LessonID      string `json:"lesson_id"`
	LessonVersion int    `json:"lesson_version"`
	ListKey       string `json:"list_key"`
	SegmentNumber int    `json:"segment_number"`
	// MediaName is the human-readable file name; MediaKey is where to store it.
	MediaName  string                       `json:"media_name"`
	MediaKey   string                       `json:"media_key"`
	Lines      []Line                       `json:"lines"`
	Breakpoint *scenario.BreakpointQuestion `json:"breakpoint,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, jobs []Job) error
}

// Jobs lists one job per segment of m, main line first.
func Jobs(lessonID string, version int, sc scenario.Scenario, m segment.Map) ([]Job, error) {
	out := make([]Job, 0, m.Total())
	for _, key := range m.Keys() {
		for _, seg := range m[key] {
			lines := make([]Line, 0, len(seg.Sources))
			for _, addr := range seg.Sources {
				l, err := sc.Resolve(addr)
				if err != nil {
					return nil, fmt.Errorf("segment %s/%d: %w", key, seg.Number, err)
				}
				lines = append(lines, Line{Role: l.Role, Text: l.Dialogue, Voice: sc.Characters[l.Role], Image: l.Image})
			}
			out = append(out, Job{
				ID:            uuid.NewString(),
				LessonID:      lessonID,
				LessonVersion: version,
				ListKey:       key,
				SegmentNumber: seg.Number,
				MediaName:     segment.MediaName(sc.Title, key, seg.Number),
				MediaKey:      storage.SegmentKey(lessonID, key, seg.Number),
				Lines:         lines,
				Breakpoint:    seg.Breakpoint,
			})
		}
	}
	return out, nil
}
