// Package handler exposes the on-demand reconciliation trigger.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodlink/internal/mirror"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/httputil"
	request "foodlink/pkg/platform/middleware/request"
	"foodlink/pkg/requestcontext"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (mirror.Report, error)
}

type Handler struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func New(r Reconciler, logger *slog.Logger) *Handler {
	return &Handler{reconciler: r, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/reconcile", h.HandleReconcile)
}

func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	actor := requestcontext.Actor(ctx)
	if err := actor.Require(domain.CapabilityAdminister, "only administrators can reconcile"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual reconciliation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUpstream, "reconciliation could not list the stores"))
		return
	}
	h.logger.InfoContext(ctx, "manual reconciliation",
		"request_id", requestID,
		"user_id", actor.UserID,
		"deleted", report.Deleted,
		"restored", report.Restored,
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}
