package models

import (
	"strings"
	"time"

	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
)

// Status is the authoritative lifecycle position of a donation.
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusClaimed, StatusDelivered, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusExpired
}

// CanTransitionTo encodes the allowed donation transitions:
// available→claimed, claimed→delivered, claimed→available, and any
// non-terminal status→expired.
func (s Status) CanTransitionTo(next Status) bool {
	switch {
	case s == StatusAvailable && next == StatusClaimed:
		return true
	case s == StatusClaimed && (next == StatusDelivered || next == StatusAvailable):
		return true
	case !s.IsTerminal() && next == StatusExpired:
		return true
	}
	return false
}

// ParseStatus validates a status string in any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid donation status: "+s)
	}
	return st, nil
}

// Priority is the urgency tier used as a ranking tie-break.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// AllPriorities lists priorities from most to least urgent.
var AllPriorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Rank orders priorities; higher is more urgent, 0 means unknown.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority accepts any letter case.
func ParsePriority(s string) (Priority, error) {
	for _, p := range AllPriorities {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid priority: "+s)
}

const (
	highPriorityWindow   = 24 * time.Hour
	mediumPriorityWindow = 72 * time.Hour
)

// DerivePriority assigns an urgency tier from the time left before expiry.
func DerivePriority(now, expiresAt time.Time) Priority {
	left := expiresAt.Sub(now)
	switch {
	case left < highPriorityWindow:
		return PriorityHigh
	case left < mediumPriorityWindow:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Donation is the full record held by the record store.
type Donation struct {
	ID          domain.DonationID
	OwnerID     domain.UserID
	Status      Status
	Title       string
	Description string
	FoodTypes   []string
	Allergens   []string
	Quantity    int
	Address     string
	City        string
	State       string
	Latitude    float64
	Longitude   float64
	ExpiresAt   time.Time
	Priority    Priority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOverdue reports whether the donation has passed its expiry while still
// in a non-terminal status.
func (d *Donation) IsOverdue(now time.Time) bool {
	return !d.Status.IsTerminal() && d.ExpiresAt.Before(now)
}

// HasAnyFoodType reports whether any of the donation's types is in set.
func (d *Donation) HasAnyFoodType(set map[string]struct{}) bool {
	return hasAny(d.FoodTypes, set)
}

// HasAnyAllergen reports whether any of the donation's allergens is in set.
func (d *Donation) HasAnyAllergen(set map[string]struct{}) bool {
	return hasAny(d.Allergens, set)
}

func hasAny(tags []string, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
