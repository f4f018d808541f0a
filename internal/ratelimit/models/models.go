// Package models holds the failure-lockout record shared by the stores and
// the lockout service.
package models

import (
	"time"

	"foodlink/pkg/domain"
)

// Lockout counts failed attempts against one key within a fixed window. Once
// LockedUntil is set the key is refused until that instant passes.
type Lockout struct {
	Key         string     `json:"key"`
	Failures    int        `json:"failures"`
	WindowStart time.Time  `json:"window_start"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// IsLockedAt reports whether the key is locked at now.
func (l *Lockout) IsLockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// LapsedAt reports whether the record no longer constrains the key: its lock
// has ended, or, when unlocked, its window has closed.
func (l *Lockout) LapsedAt(now time.Time, window time.Duration) bool {
	if l.LockedUntil != nil {
		return !now.Before(*l.LockedUntil)
	}
	return !now.Before(l.WindowStart.Add(window))
}

// VerifyKey scopes code attempts to one organization and one donation, so a
// lockout never spills over to another pickup.
func VerifyKey(org domain.OrganizationID, donation domain.DonationID) string {
	return "verify:" + org.String() + ":" + donation.String()
}
