package handler

import (
	"time"

	"foodlink/internal/donation/models"
	"foodlink/internal/donation/service"
	dErrors "foodlink/pkg/domain-errors"
)

type DonationRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	FoodTypes   []string   `json:"foodTypes"`
	Allergens   []string   `json:"allergens"`
	Quantity    int        `json:"quantity"`
	Address     string     `json:"address"`
	City        string     `json:"city"`
	State       string     `json:"state"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Priority    string     `json:"priority,omitempty"`

	priority *models.Priority
}

// Validate checks presence; value rules live in the service.
func (r *DonationRequest) Validate() error {
	if r.Latitude == nil || r.Longitude == nil {
		return dErrors.New(dErrors.CodeValidation, "latitude and longitude are required")
	}
	if r.ExpiresAt == nil {
		return dErrors.New(dErrors.CodeValidation, "expiresAt is required")
	}
	if r.Priority != "" {
		p, err := models.ParsePriority(r.Priority)
		if err != nil {
			return err
		}
		r.priority = &p
	}
	return nil
}

func (r *DonationRequest) fields() service.Fields {
	return service.Fields{
		Title:       r.Title,
		Description: r.Description,
		FoodTypes:   r.FoodTypes,
		Allergens:   r.Allergens,
		Quantity:    r.Quantity,
		Address:     r.Address,
		City:        r.City,
		State:       r.State,
		Latitude:    *r.Latitude,
		Longitude:   *r.Longitude,
		ExpiresAt:   *r.ExpiresAt,
	}
}
