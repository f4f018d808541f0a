package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "foodlink/pkg/domain-errors"
)

// Typed identifiers keep donation, claim, and actor ids from being mixed up at
// compile time. All are UUIDs on the wire.
type (
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	DonationID     uuid.UUID
	ClaimID        uuid.UUID
)

func NewDonationID() DonationID { return DonationID(uuid.New()) }
func NewClaimID() ClaimID       { return ClaimID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id DonationID) String() string     { return uuid.UUID(id).String() }
func (id ClaimID) String() string        { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DonationID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ClaimID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// AsOrganization reinterprets a user as the organization it acts for.
// Organizations authenticate as users holding the organization role.
func (id UserID) AsOrganization() OrganizationID { return OrganizationID(id) }

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization_id")
	return OrganizationID(u), err
}

func ParseDonationID(s string) (DonationID, error) {
	u, err := parseUUID(s, "donation_id")
	return DonationID(u), err
}

func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID(s, "claim_id")
	return ClaimID(u), err
}

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(s, field string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}
