package lesson

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

var ErrNotFound = errors.New("lesson not found")

type Lesson struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	OwnerID  string            `json:"owner_id,omitempty"`
	Scenario scenario.Scenario `json:"scenario"`
	// Version increases on every Put. Sessions started on an older version restart.
	Version   int   `json:"version"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

type Summary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OwnerID   string `json:"owner_id,omitempty"`
	Version   int    `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

type ListOpts struct {
	Q       string // title substring, case-insensitive
	OwnerID string
	Limit   int
	Offset  int
}

// Store is the lesson storage collaborator, keyed by opaque lesson id.
type Store interface {
	// Put creates the lesson when ID is empty or unknown, otherwise replaces
	// it. The stored lesson is returned with ID, Version and timestamps set.
	Put(ctx context.Context, l Lesson) (Lesson, error)
	Get(ctx context.Context, id string) (Lesson, error)
	List(ctx context.Context, opts ListOpts) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

func normalize(l Lesson) Lesson {
	if l.Title == "" {
		l.Title = l.Scenario.Title
	}
	return l
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 200:
		return 200
	default:
		return n
	}
}
