package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

// InMemoryStore is a record store for development mode and tests. Each
// method is atomic; callers needing multi-record units wrap them in a
// tx.LockRunner.
type InMemoryStore struct {
	mu        sync.RWMutex
	donations map[domain.DonationID]*models.Donation
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{donations: make(map[domain.DonationID]*models.Donation)}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donations[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.donations[d.ID] = clone(d)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.donations[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := clone(d)
	// status and priority are never changed by a content update
	updated.Status = existing.Status
	updated.Priority = existing.Priority
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	s.donations[d.ID] = updated
	return nil
}

// DeleteAvailable removes the donation only while it is available.
func (s *InMemoryStore) DeleteAvailable(_ context.Context, id domain.DonationID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if d.Status != models.StatusAvailable {
		return false, nil
	}
	delete(s.donations, id)
	return true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.DonationID) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

func (s *InMemoryStore) FindByIDs(_ context.Context, ids []domain.DonationID) ([]*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Donation, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.donations[id]; ok {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListIDs(_ context.Context) ([]domain.DonationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DonationID, 0, len(s.donations))
	for id := range s.donations {
		out = append(out, id)
	}
	return out, nil
}

func (s *InMemoryStore) TransitionStatus(_ context.Context, id domain.DonationID, from, to models.Status, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = to
	d.UpdatedAt = now
	return true, nil
}

func (s *InMemoryStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Donation
	for _, d := range s.donations {
		if d.IsOverdue(now) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(d *models.Donation) *models.Donation {
	c := *d
	c.FoodTypes = append([]string(nil), d.FoodTypes...)
	c.Allergens = append([]string(nil), d.Allergens...)
	return &c
}
