package domain

import (
	"strings"

	dErrors "foodlink/pkg/domain-errors"
)

// Role is an actor category carried in access tokens.
type Role string

const (
	RoleOrganization Role = "organization"
	RoleDonor        Role = "donor"
	RoleAdmin        Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOrganization, RoleDonor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole validates a role name. Legacy aliases from earlier token issuers
// ("ngo", "event_host", "farmer") map onto the enumerated roles.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organization", "ngo":
		return RoleOrganization, nil
	case "donor", "event_host", "farmer":
		return RoleDonor, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
}

// Capability is something an actor may do. Services check capabilities, never
// raw role strings.
type Capability int

const (
	CapabilityClaim Capability = iota + 1
	CapabilityDonate
	CapabilityAdminister
)

var capabilityRoles = map[Capability][]Role{
	CapabilityClaim:      {RoleOrganization},
	CapabilityDonate:     {RoleDonor},
	CapabilityAdminister: {RoleAdmin},
}

// RoleSet is the set of roles an actor holds.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from already-validated roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// ParseRoleSet ignores unknown role names rather than failing the request;
// an unknown role simply grants nothing.
func ParseRoleSet(names []string) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		if r, err := ParseRole(n); err == nil {
			set[r] = struct{}{}
		}
	}
	return set
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Can reports whether any held role grants the capability.
func (s RoleSet) Can(c Capability) bool {
	for _, r := range capabilityRoles[c] {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns the roles in a stable order for tokens and logs.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, r := range []Role{RoleOrganization, RoleDonor, RoleAdmin} {
		if s.Has(r) {
			out = append(out, string(r))
		}
	}
	return out
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID UserID
	Roles  RoleSet
}

// Require returns a forbidden error when the actor lacks the capability.
func (a Actor) Require(c Capability, msg string) error {
	if a.UserID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !a.Roles.Can(c) {
		return dErrors.New(dErrors.CodeForbidden, msg)
	}
	return nil
}
