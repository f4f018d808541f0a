// Package mirror keeps the attribute store in line with the record store. The
// outbox handler applies donation changes after they commit; the reconciler
// sweeps away facts no record backs and restores facts that went missing.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/internal/outbox"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/circuit"
	"foodlink/pkg/platform/sentinel"
)

// Records is the read side of the donation record store.
type Records interface {
	FindByID(ctx context.Context, id domain.DonationID) (*models.Donation, error)
	FindByIDs(ctx context.Context, ids []domain.DonationID) ([]*models.Donation, error)
	ListIDs(ctx context.Context) ([]domain.DonationID, error)
}

// ErrCircuitOpen defers an entry while the attribute store is failing. The
// outbox reschedules it like any other failure.
var ErrCircuitOpen = errors.New("attribute store circuit open")

// Kinds are the outbox kinds the handler consumes.
var Kinds = []outbox.Kind{
	outbox.KindDonationUpserted,
	outbox.KindDonationStatusChanged,
	outbox.KindDonationDeleted,
}

// Handler applies donation outbox entries to the attribute store. Upserts and
// status changes re-read the record at dispatch, so an entry that arrives late
// or out of order still mirrors the current state.
type Handler struct {
	attrs   attributes.Store
	records Records
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(h *Handler) { h.metrics = m } }

func WithBreaker(b *circuit.Breaker) Option {
	return func(h *Handler) {
		if b != nil {
			h.breaker = b
		}
	}
}

func NewHandler(attrs attributes.Store, records Records, opts ...Option) (*Handler, error) {
	if attrs == nil {
		return nil, errors.New("attribute store is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	h := &Handler{
		attrs:   attrs,
		records: records,
		breaker: circuit.New("attribute-store"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, e *outbox.Entry) error {
	id, err := donationID(e)
	if err != nil {
		return err
	}
	if !h.breaker.Allow() {
		h.metrics.shortCircuit()
		return ErrCircuitOpen
	}

	if err := h.apply(ctx, e.Kind, id); err != nil {
		h.recordFailure(ctx)
		return err
	}
	if _, change := h.breaker.RecordSuccess(); change.Closed {
		h.metrics.breakerState(false)
		h.logger.InfoContext(ctx, "attribute store circuit closed")
	}
	h.metrics.applied(e.Kind)
	return nil
}

func (h *Handler) apply(ctx context.Context, kind outbox.Kind, id domain.DonationID) error {
	if kind == outbox.KindDonationDeleted {
		return h.attrs.DeleteDonation(ctx, id)
	}

	d, err := h.records.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.logger.InfoContext(ctx, "donation gone before mirror, removing facts", "donation_id", id)
		return h.attrs.DeleteDonation(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("re-read donation: %w", err)
	}

	if kind == outbox.KindDonationStatusChanged {
		err := h.attrs.UpdateStatus(ctx, id, d.Status)
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		h.logger.InfoContext(ctx, "status change for unmirrored donation, upserting", "donation_id", id)
	}
	return h.attrs.UpsertDonation(ctx, attributes.FactsFrom(d))
}

func (h *Handler) recordFailure(ctx context.Context) {
	if _, change := h.breaker.RecordFailure(); change.Opened {
		h.metrics.breakerState(true)
		h.logger.WarnContext(ctx, "attribute store circuit opened", "breaker", h.breaker.Name())
	}
}

func donationID(e *outbox.Entry) (domain.DonationID, error) {
	switch e.Kind {
	case outbox.KindDonationUpserted:
		p, err := outbox.Decode[outbox.DonationUpserted](e)
		return domain.DonationID(p.DonationID), err
	case outbox.KindDonationStatusChanged:
		p, err := outbox.Decode[outbox.DonationStatusChanged](e)
		return domain.DonationID(p.DonationID), err
	case outbox.KindDonationDeleted:
		p, err := outbox.Decode[outbox.DonationDeleted](e)
		return domain.DonationID(p.DonationID), err
	}
	return domain.DonationID{}, fmt.Errorf("mirror cannot handle kind %s", e.Kind)
}
