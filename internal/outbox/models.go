// Package outbox records follow-up work in the same unit as the authoritative
// write and drains it in the background. Entries mirror donation facts into
// the attribute store and carry claim notifications to the publisher.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names what an entry asks the worker to do.
type Kind string

const (
	KindDonationUpserted      Kind = "donation.upserted"
	KindDonationStatusChanged Kind = "donation.status_changed"
	KindDonationDeleted       Kind = "donation.deleted"
	KindClaimCreated          Kind = "claim.created"
	KindClaimDelivered        Kind = "claim.delivered"
	KindClaimCancelled        Kind = "claim.cancelled"
	KindClaimExpired          Kind = "claim.expired"
)

// IsClaimEvent reports whether the kind is a claim notification.
func (k Kind) IsClaimEvent() bool {
	switch k {
	case KindClaimCreated, KindClaimDelivered, KindClaimCancelled, KindClaimExpired:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

// Entry is one row of the outbox table.
type Entry struct {
	ID            uuid.UUID
	Kind          Kind
	AggregateID   uuid.UUID
	Payload       []byte
	Status        Status
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewEntry builds a pending entry due immediately.
func NewEntry(kind Kind, aggregateID uuid.UUID, payload any, now time.Time) (*Entry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Entry{
		ID:            uuid.New(),
		Kind:          kind,
		AggregateID:   aggregateID,
		Payload:       body,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// Decode unmarshals an entry payload into T.
func Decode[T any](e *Entry) (T, error) {
	var out T
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return out, nil
}

// DonationUpserted carries the facts mirrored into the attribute store.
type DonationUpserted struct {
	DonationID uuid.UUID `json:"donation_id"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	FoodTypes  []string  `json:"food_types"`
	Allergens  []string  `json:"allergens"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type DonationStatusChanged struct {
	DonationID uuid.UUID `json:"donation_id"`
	Status     string    `json:"status"`
}

type DonationDeleted struct {
	DonationID uuid.UUID `json:"donation_id"`
}

// ClaimEvent is the notification payload for every claim kind. Code is only
// set on claim.created; the plain code is never stored anywhere else.
type ClaimEvent struct {
	ClaimID         uuid.UUID `json:"claim_id"`
	DonationID      uuid.UUID `json:"donation_id"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	DeliveryMode    string    `json:"delivery_mode"`
	Status          string    `json:"status"`
	Code            string    `json:"code,omitempty"`
	BufferExpiresAt time.Time `json:"buffer_expires_at"`
	OccurredAt      time.Time `json:"occurred_at"`
}
