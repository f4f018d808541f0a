package models

import "time"

// DonationResponse is the wire form of a donation.
type DonationResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Status      Status    `json:"status"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	FoodTypes   []string  `json:"foodTypes"`
	Allergens   []string  `json:"allergens"`
	Quantity    int       `json:"quantity"`
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Priority    Priority  `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	DistanceKm  *float64  `json:"distanceKm,omitempty"`
}

func ToResponse(d *Donation) DonationResponse {
	allergens := d.Allergens
	if allergens == nil {
		allergens = []string{}
	}
	return DonationResponse{
		ID:          d.ID.String(),
		OwnerID:     d.OwnerID.String(),
		Status:      d.Status,
		Title:       d.Title,
		Description: d.Description,
		FoodTypes:   d.FoodTypes,
		Allergens:   allergens,
		Quantity:    d.Quantity,
		Address:     d.Address,
		City:        d.City,
		State:       d.State,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		ExpiresAt:   d.ExpiresAt,
		Priority:    d.Priority,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
