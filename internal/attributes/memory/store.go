// Package memory is an in-process attribute store for development mode and
// tests. Distances are haversine.
package memory

import (
	"context"
	"sort"
	"sync"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

type Store struct {
	mu          sync.RWMutex
	donations   map[domain.DonationID]attributes.DonationFacts
	preferences map[domain.OrganizationID]attributes.Preferences
}

func New() *Store {
	return &Store{
		donations:   make(map[domain.DonationID]attributes.DonationFacts),
		preferences: make(map[domain.OrganizationID]attributes.Preferences),
	}
}

func (s *Store) SearchCandidates(_ context.Context, q attributes.CandidateQuery) ([]attributes.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := toSet(q.Statuses)
	priorities := toSet(q.Priorities)
	rejected := toSet(q.RejectedTypes)
	avoided := toSet(q.AvoidedAllergens)
	preferred := toSet(q.PreferredTypes)

	type scored struct {
		attributes.Candidate
		preferred bool
	}
	var matches []scored
	for id, f := range s.donations {
		if len(statuses) > 0 && !contains(statuses, f.Status) {
			continue
		}
		if len(priorities) > 0 && !contains(priorities, f.Priority) {
			continue
		}
		if intersects(f.FoodTypes, rejected) || intersects(f.Allergens, avoided) {
			continue
		}
		c := scored{Candidate: attributes.Candidate{DonationID: id}, preferred: intersects(f.FoodTypes, preferred)}
		if q.Origin != nil {
			d := attributes.HaversineKm(*q.Origin, attributes.GeoPoint{Latitude: f.Latitude, Longitude: f.Longitude})
			if d > q.MaxDistanceKm {
				continue
			}
			c.DistanceKm = &d
		}
		matches = append(matches, c)
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.preferred != b.preferred {
			return a.preferred
		}
		if a.DistanceKm != nil && b.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
		return a.DonationID.String() < b.DonationID.String()
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	out := make([]attributes.Candidate, len(matches))
	for i, m := range matches {
		out[i] = m.Candidate
	}
	return out, nil
}

func (s *Store) UpsertDonation(_ context.Context, facts attributes.DonationFacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	facts.FoodTypes = append([]string(nil), facts.FoodTypes...)
	facts.Allergens = append([]string(nil), facts.Allergens...)
	s.donations[facts.ID] = facts
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, id domain.DonationID, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.donations[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	f.Status = status
	s.donations[id] = f
	return nil
}

func (s *Store) DeleteDonation(_ context.Context, id domain.DonationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.donations, id)
	return nil
}

func (s *Store) ListDonationIDs(_ context.Context) ([]domain.DonationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.DonationID, 0, len(s.donations))
	for id := range s.donations {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) OrganizationPreferences(_ context.Context, org domain.OrganizationID) (*attributes.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[org]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SetOrganizationPreferences saves an organization profile.
func (s *Store) SetOrganizationPreferences(org domain.OrganizationID, p attributes.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[org] = p
}

// Facts returns the mirrored facts for id.
func (s *Store) Facts(id domain.DonationID) (attributes.DonationFacts, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.donations[id]
	return f, ok
}

func toSet[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func contains[T comparable](set map[T]struct{}, v T) bool {
	_, ok := set[v]
	return ok
}

func intersects(tags []string, set map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
