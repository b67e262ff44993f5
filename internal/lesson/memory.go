package lesson

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.RWMutex
	lessons map[string]Lesson
}

func NewInMemoryStore() Store {
	return &memoryStore{lessons: map[string]Lesson{}}
}

func (m *memoryStore) Put(_ context.Context, l Lesson) (Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l = normalize(l)
	now := time.Now().Unix()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if prev, ok := m.lessons[l.ID]; ok {
		l.Version = prev.Version + 1
		l.CreatedAt = prev.CreatedAt
	} else {
		l.Version = 1
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	l.Scenario = l.Scenario.Clone()
	m.lessons[l.ID] = l
	l.Scenario = l.Scenario.Clone()
	return l, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	l.Scenario = l.Scenario.Clone()
	return l, nil
}

func (m *memoryStore) List(_ context.Context, opts ListOpts) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := make([]Summary, 0, len(m.lessons))
	for _, l := range m.lessons {
		if opts.OwnerID != "" && l.OwnerID != opts.OwnerID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(l.Title), q) {
			continue
		}
		out = append(out, Summary{ID: l.ID, Title: l.Title, OwnerID: l.OwnerID, Version: l.Version, UpdatedAt: l.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset >= len(out) {
		return []Summary{}, nil
	}
	out = out[opts.Offset:]
	if limit := clampLimit(opts.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lessons[id]; !ok {
		return ErrNotFound
	}
	delete(m.lessons, id)
	return nil
}
