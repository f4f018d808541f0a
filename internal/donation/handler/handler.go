package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodlink/internal/donation/models"
	"foodlink/internal/donation/service"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/httputil"
	request "foodlink/pkg/platform/middleware/request"
)

type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Donation, error)
	Get(ctx context.Context, id domain.DonationID) (*models.Donation, error)
	Update(ctx context.Context, cmd service.UpdateCommand) (*models.Donation, error)
	Delete(ctx context.Context, id domain.DonationID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the donation CRUD routes. Search lives in its own handler
// on GET /food-donations.
func (h *Handler) Register(r chi.Router) {
	r.Post("/food-donations", h.HandleCreate)
	r.Get("/food-donations/{id}", h.HandleGet)
	r.Put("/food-donations/{id}", h.HandleUpdate)
	r.Delete("/food-donations/{id}", h.HandleDelete)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DonationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.service.Create(ctx, service.CreateCommand{Fields: req.fields(), Priority: req.priority})
	if err != nil {
		h.fail(ctx, w, requestID, "create donation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToResponse(d))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "get donation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(d))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	id, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DonationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.priority != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "priority cannot be changed"))
		return
	}
	d, err := h.service.Update(ctx, service.UpdateCommand{ID: id, Fields: req.fields()})
	if err != nil {
		h.fail(ctx, w, requestID, "update donation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(d))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "delete donation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if de, ok := dErrors.As(err); !ok || de.Code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
