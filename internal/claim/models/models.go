package models

import (
	"strings"
	"time"

	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no operation may act on the claim any more.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid claim status: "+s)
	}
	return st, nil
}

type DeliveryMode string

const (
	DeliverySelfPickup DeliveryMode = "self_pickup"
	DeliveryDelivery   DeliveryMode = "delivery"
)

func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case DeliverySelfPickup:
		return DeliverySelfPickup, nil
	case DeliveryDelivery:
		return DeliveryDelivery, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "deliveryMode must be self_pickup or delivery")
}

// Claim is an organization's time-boxed custody of one donation. Only the
// bcrypt hash of the one-time code is kept.
type Claim struct {
	ID              domain.ClaimID
	OrganizationID  domain.OrganizationID
	DonationID      domain.DonationID
	DeliveryMode    DeliveryMode
	CodeHash        string
	BufferExpiresAt time.Time
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsBufferExpired reports whether the pickup window closed before now.
func (c *Claim) IsBufferExpired(now time.Time) bool {
	return c.BufferExpiresAt.Before(now)
}

// ClaimResponse is the wire form of a claim.
type ClaimResponse struct {
	ID              string       `json:"id"`
	OrganizationID  string       `json:"organizationId"`
	DonationID      string       `json:"donationId"`
	DeliveryMode    DeliveryMode `json:"deliveryMode"`
	Status          Status       `json:"status"`
	BufferExpiresAt time.Time    `json:"bufferExpiresAt"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

func ToResponse(c *Claim) ClaimResponse {
	return ClaimResponse{
		ID:              c.ID.String(),
		OrganizationID:  c.OrganizationID.String(),
		DonationID:      c.DonationID.String(),
		DeliveryMode:    c.DeliveryMode,
		Status:          c.Status,
		BufferExpiresAt: c.BufferExpiresAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
