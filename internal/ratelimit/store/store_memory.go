// Package store persists lockout records. The memory store serves single
// replicas and tests; the Redis store shares lockouts across replicas and
// lets Redis expire closed windows.
package store

import (
	"context"
	"sync"
	"time"

	"foodlink/internal/ratelimit/models"
	"foodlink/pkg/requestcontext"
)

type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.Lockout
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.Lockout)}
}

// RecordFailure counts one failure, opening a fresh window when the previous
// record has lapsed.
func (s *InMemoryStore) RecordFailure(ctx context.Context, key string, window time.Duration) (*models.Lockout, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.LapsedAt(now, window) {
		rec = &models.Lockout{Key: key, WindowStart: now}
		s.records[key] = rec
	}
	rec.Failures++
	out := *rec
	return &out, nil
}

func (s *InMemoryStore) Lock(ctx context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = &models.Lockout{Key: key, WindowStart: requestcontext.Now(ctx)}
		s.records[key] = rec
	}
	rec.LockedUntil = &until
	return nil
}

// Get returns nil when the key has no record.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
