package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodlink/internal/claim/models"
	"foodlink/internal/claim/service"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/httputil"
	request "foodlink/pkg/platform/middleware/request"
	"foodlink/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*service.CreateResult, error)
	Verify(ctx context.Context, cmd service.VerifyCommand) (*models.Claim, error)
	Cancel(ctx context.Context, cmd service.CancelCommand) (*models.Claim, error)
	List(ctx context.Context, org domain.OrganizationID, status *models.Status) ([]*models.Claim, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/food-donations/{id}/claim", h.HandleClaim)
	r.Post("/food-donations/{id}/verify-otp", h.HandleVerify)
	r.Delete("/claims/{id}", h.HandleCancel)
	r.Get("/claims", h.HandleList)
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	donationID, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Create(ctx, service.CreateCommand{
		DonationID:   donationID,
		Caller:       requestcontext.Actor(ctx),
		DeliveryMode: req.DeliveryMode,
		PickupBuffer: req.PickupBufferTime,
	})
	if err != nil {
		h.fail(ctx, w, requestID, "claim donation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ClaimCreatedResponse{
		ClaimResponse: models.ToResponse(res.Claim),
		OTP:           res.Code,
	})
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	donationID, err := domain.ParseDonationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.Verify(ctx, service.VerifyCommand{
		DonationID: donationID,
		Caller:     requestcontext.Actor(ctx),
		Code:       req.OTP,
	})
	if err != nil {
		h.fail(ctx, w, requestID, "verify pickup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(c))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := domain.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Cancel(ctx, service.CancelCommand{ClaimID: claimID, Caller: requestcontext.Actor(ctx)})
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "cancel claim failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(c))
}

// HandleList returns the calling organization's claims, optionally filtered
// by ?status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	if err := actor.Require(domain.CapabilityClaim, "only organizations have claims"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = &st
	}
	claims, err := h.service.List(ctx, actor.UserID.AsOrganization(), status)
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "list claims failed", err)
		return
	}
	out := ClaimListResponse{Claims: make([]models.ClaimResponse, 0, len(claims))}
	for _, c := range claims {
		out.Claims = append(out.Claims, models.ToResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if de, ok := dErrors.As(err); !ok || de.Code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
