// Package attributes defines the attribute store: a denormalised, query-only
// mirror of donation facts plus saved organization preferences. It is never
// authoritative for status.
package attributes

import (
	"context"
	"time"

	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
)

// Store is implemented by the SPARQL client and the in-memory store.
type Store interface {
	SearchCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	UpsertDonation(ctx context.Context, facts DonationFacts) error
	UpdateStatus(ctx context.Context, id domain.DonationID, status models.Status) error
	DeleteDonation(ctx context.Context, id domain.DonationID) error
	ListDonationIDs(ctx context.Context) ([]domain.DonationID, error)
	OrganizationPreferences(ctx context.Context, org domain.OrganizationID) (*Preferences, error)
}

type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// CandidateQuery selects a superset of matching donations. Exclusion is by
// intersection: a donation carrying any rejected type or avoided allergen is
// dropped. PreferredTypes only influence which candidates fill the window.
type CandidateQuery struct {
	Statuses         []models.Status
	Priorities       []models.Priority
	PreferredTypes   []string
	RejectedTypes    []string
	AvoidedAllergens []string
	Origin           *GeoPoint
	MaxDistanceKm    float64
	Limit            int
}

// Candidate is one matching donation id. DistanceKm is nil when the query
// had no origin.
type Candidate struct {
	DonationID domain.DonationID
	DistanceKm *float64
}

// DonationFacts are the mirrored fields of a donation.
type DonationFacts struct {
	ID        domain.DonationID
	Status    models.Status
	Priority  models.Priority
	FoodTypes []string
	Allergens []string
	Latitude  float64
	Longitude float64
	ExpiresAt time.Time
}

// FactsFrom projects a record onto its mirrored facts.
func FactsFrom(d *models.Donation) DonationFacts {
	return DonationFacts{
		ID:        d.ID,
		Status:    d.Status,
		Priority:  d.Priority,
		FoodTypes: d.FoodTypes,
		Allergens: d.Allergens,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		ExpiresAt: d.ExpiresAt,
	}
}

// Preferences are an organization's saved search defaults.
type Preferences struct {
	PreferredTypes   []string
	RejectedTypes    []string
	AvoidedAllergens []string
	Location         *GeoPoint
}

// IsEmpty reports whether nothing is saved.
func (p *Preferences) IsEmpty() bool {
	return p == nil || (len(p.PreferredTypes) == 0 && len(p.RejectedTypes) == 0 &&
		len(p.AvoidedAllergens) == 0 && p.Location == nil)
}
