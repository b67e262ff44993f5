package session

import (
	"context"
	"errors"
	"sync"

	"github.com/mind-engage/mindengage-lessons/internal/playback"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrForbidden = errors.New("session belongs to another learner")
)

// Session is one learner's walk through one lesson.
type Session struct {
	ID            string         `json:"id"`
	LessonID      string         `json:"lesson_id"`
	LessonVersion int            `json:"lesson_version"`
	LearnerID     string         `json:"learner_id"`
	State         playback.State `json:"state"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}

// CheckOwner returns ErrForbidden unless learnerID started s. override
// skips the check for staff.
func (s Session) CheckOwner(learnerID string, override bool) error {
	if override || (learnerID != "" && s.LearnerID == learnerID) {
		return nil
	}
	return ErrForbidden
}

type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemoryStore() Store {
	return &memoryStore{sessions: map[string]Session{}}
}

func (m *memoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[s.ID] = s
	return nil
}
