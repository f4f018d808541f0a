package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"foodlink/internal/claim/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
)

// MaxPickupBuffer caps how long an organization may hold a donation.
const MaxPickupBuffer = 72 * time.Hour

var bufferPattern = regexp.MustCompile(`^([0-9]{1,5})([hm])$`)

// ParseBuffer reads a pickup window written as "<N>h" or "<N>m".
func ParseBuffer(raw string) (time.Duration, error) {
	m := bufferPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return 0, dErrors.New(dErrors.CodeValidation, "pickupBufferTime must look like 2h or 30m")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "pickupBufferTime must be at least 1")
	}
	unit := time.Hour
	if m[2] == "m" {
		unit = time.Minute
	}
	d := time.Duration(n) * unit
	if d > MaxPickupBuffer {
		return 0, dErrors.New(dErrors.CodeValidation, "pickupBufferTime must not exceed 72h")
	}
	return d, nil
}

type CreateCommand struct {
	DonationID   domain.DonationID
	Caller       domain.Actor
	DeliveryMode string
	PickupBuffer string
}

// CreateResult carries the plain one-time code. It exists only here and in
// the claim.created notification.
type CreateResult struct {
	Claim *models.Claim
	Code  string
}

type VerifyCommand struct {
	DonationID domain.DonationID
	Caller     domain.Actor
	Code       string
}

type CancelCommand struct {
	ClaimID domain.ClaimID
	Caller  domain.Actor
}
