package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodlink/internal/outbox"
	"foodlink/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*outbox.Entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[uuid.UUID]*outbox.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, e *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.entries[e.ID] = &c
	return nil
}

func (s *InMemoryStore) Lease(_ context.Context, now, until time.Time, limit int) ([]*outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*outbox.Entry
	for _, e := range s.entries {
		if e.Status == outbox.StatusPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*outbox.Entry, 0, len(due))
	for _, e := range due {
		e.NextAttemptAt = until
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *InMemoryStore) MarkDone(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != outbox.StatusPending {
		return sentinel.ErrNotFound
	}
	e.Status = outbox.StatusDone
	e.ProcessedAt = &now
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id uuid.UUID, f outbox.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != outbox.StatusPending {
		return sentinel.ErrNotFound
	}
	e.Attempts = f.Attempts
	e.LastError = f.Error
	e.NextAttemptAt = f.NextAttemptAt
	if f.Dead {
		e.Status = outbox.StatusDead
	}
	return nil
}

// Entries returns a snapshot of every entry, oldest first.
func (s *InMemoryStore) Entries() []*outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*outbox.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
