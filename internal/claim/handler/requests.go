package handler

import (
	"strings"

	"foodlink/internal/claim/models"
	dErrors "foodlink/pkg/domain-errors"
)

type ClaimRequest struct {
	DeliveryMode     string `json:"deliveryMode"`
	PickupBufferTime string `json:"pickupBufferTime"`
}

func (r *ClaimRequest) Validate() error {
	if strings.TrimSpace(r.DeliveryMode) == "" {
		return dErrors.New(dErrors.CodeValidation, "deliveryMode is required")
	}
	if strings.TrimSpace(r.PickupBufferTime) == "" {
		return dErrors.New(dErrors.CodeValidation, "pickupBufferTime is required")
	}
	return nil
}

type VerifyRequest struct {
	OTP string `json:"otp"`
}

func (r *VerifyRequest) Validate() error {
	r.OTP = strings.TrimSpace(r.OTP)
	if r.OTP == "" {
		return dErrors.New(dErrors.CodeValidation, "otp is required")
	}
	return nil
}

// ClaimCreatedResponse hands the one-time code to the claiming
// organization. It is never returned again.
type ClaimCreatedResponse struct {
	models.ClaimResponse
	OTP string `json:"otp"`
}

type ClaimListResponse struct {
	Claims []models.ClaimResponse `json:"claims"`
}
