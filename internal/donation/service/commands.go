package service

import (
	"strings"
	"time"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	pkgstrings "foodlink/pkg/platform/strings"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxTags              = 20
)

// Fields shared by create and update.
type Fields struct {
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
}

type CreateCommand struct {
	Fields
	Priority *models.Priority
}

type UpdateCommand struct {
	ID domain.DonationID
	Fields
}

func (f *Fields) Normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.State = strings.TrimSpace(f.State)
	f.FoodTypes = pkgstrings.CanonicalTags(f.FoodTypes)
	f.Allergens = pkgstrings.CanonicalTags(f.Allergens)
	if f.Allergens == nil {
		f.Allergens = []string{}
	}
}

func (f *Fields) Validate(now time.Time) error {
	switch {
	case f.Title == "":
		return validation("title is required")
	case len(f.Title) > maxTitleLength:
		return validation("title is too long")
	case len(f.Description) > maxDescriptionLength:
		return validation("description is too long")
	case len(f.FoodTypes) == 0:
		return validation("at least one food type is required")
	case len(f.FoodTypes) > maxTags || len(f.Allergens) > maxTags:
		return validation("too many tags")
	case f.Quantity <= 0:
		return validation("quantity must be positive")
	case f.Latitude < -90 || f.Latitude > 90:
		return validation("latitude must be between -90 and 90")
	case f.Longitude < -180 || f.Longitude > 180:
		return validation("longitude must be between -180 and 180")
	case f.ExpiresAt.IsZero():
		return validation("expiry is required")
	case !f.ExpiresAt.After(now):
		return validation("expiry must be in the future")
	}
	if bad := attributes.InvalidTags(f.FoodTypes); len(bad) > 0 {
		return validation("invalid food type: " + bad[0])
	}
	if bad := attributes.InvalidTags(f.Allergens); len(bad) > 0 {
		return validation("invalid allergen: " + bad[0])
	}
	return nil
}

func (c *CreateCommand) Validate(now time.Time) error {
	if err := c.Fields.Validate(now); err != nil {
		return err
	}
	if c.Priority != nil && !c.Priority.IsValid() {
		return validation("invalid priority")
	}
	return nil
}

func (c *UpdateCommand) Validate(now time.Time) error {
	if c.ID.IsNil() {
		return validation("donation id is required")
	}
	return c.Fields.Validate(now)
}

func validation(msg string) error {
	return dErrors.New(dErrors.CodeValidation, msg)
}
