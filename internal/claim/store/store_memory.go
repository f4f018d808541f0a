package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"foodlink/internal/claim/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

// InMemoryStore keeps claims in process memory. It enforces the same
// one-active-claim-per-donation rule as the partial unique index in
// PostgreSQL.
type InMemoryStore struct {
	mu     sync.RWMutex
	claims map[domain.ClaimID]*models.Claim
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{claims: make(map[domain.ClaimID]*models.Claim)}
}

func isActive(s models.Status) bool {
	return s == models.StatusPending || s == models.StatusDelivered
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[c.ID]; exists {
		return sentinel.ErrConflict
	}
	if isActive(c.Status) {
		for _, other := range s.claims {
			if other.DonationID == c.DonationID && isActive(other.Status) {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *c
	s.claims[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ClaimID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) FindPendingByDonation(_ context.Context, donationID domain.DonationID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.DonationID == donationID && c.Status == models.StatusPending {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// HasClaims reports whether any claim, in any status, references the donation.
func (s *InMemoryStore) HasClaims(_ context.Context, donationID domain.DonationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.DonationID == donationID {
			return true, nil
		}
	}
	return false, nil
}

// ListByOrganization returns the organization's claims newest first,
// optionally restricted to one status.
func (s *InMemoryStore) ListByOrganization(_ context.Context, org domain.OrganizationID, status *models.Status) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Claim, 0)
	for _, c := range s.claims {
		if c.OrganizationID != org {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryStore) TransitionStatus(_ context.Context, id domain.ClaimID, from, to models.Status, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = now
	return true, nil
}

// ListTimedOut returns pending claims whose buffer closed before now,
// oldest deadline first.
func (s *InMemoryStore) ListTimedOut(_ context.Context, now time.Time, limit int) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Claim
	for _, c := range s.claims {
		if c.Status == models.StatusPending && c.IsBufferExpired(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BufferExpiresAt.Before(out[j].BufferExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExpirePendingForDonation moves every pending claim of the donation to
// expired and returns the claims it changed.
func (s *InMemoryStore) ExpirePendingForDonation(_ context.Context, donationID domain.DonationID, now time.Time) ([]*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Claim
	for _, c := range s.claims {
		if c.DonationID != donationID || c.Status != models.StatusPending {
			continue
		}
		c.Status = models.StatusExpired
		c.UpdatedAt = now
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
