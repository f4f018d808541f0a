// Package notify hands claim notifications to the external messaging side.
// The one-time code travels only inside claim.created notifications and is
// never logged.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"foodlink/internal/outbox"
)

// Notification is the message body published for every claim event.
type Notification struct {
	Type string `json:"type"`
	outbox.ClaimEvent
}

// Publisher delivers one notification.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Kinds are the outbox kinds the handler consumes.
var Kinds = []outbox.Kind{
	outbox.KindClaimCreated,
	outbox.KindClaimDelivered,
	outbox.KindClaimCancelled,
	outbox.KindClaimExpired,
}

// Handler adapts a Publisher to the outbox worker.
type Handler struct {
	publisher Publisher
	metrics   *Metrics
}

func NewHandler(p Publisher, m *Metrics) (*Handler, error) {
	if p == nil {
		return nil, errors.New("publisher is required")
	}
	return &Handler{publisher: p, metrics: m}, nil
}

func (h *Handler) Handle(ctx context.Context, e *outbox.Entry) error {
	if !e.Kind.IsClaimEvent() {
		return fmt.Errorf("notify cannot handle kind %s", e.Kind)
	}
	ev, err := outbox.Decode[outbox.ClaimEvent](e)
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(ctx, Notification{Type: string(e.Kind), ClaimEvent: ev}); err != nil {
		h.metrics.failed(e.Kind)
		return err
	}
	h.metrics.published(e.Kind)
	return nil
}

// LogPublisher stands in for the broker in development. It logs everything
// except the code.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	p.logger.InfoContext(ctx, "claim notification",
		"type", n.Type,
		"claim_id", n.ClaimID,
		"donation_id", n.DonationID,
		"organization_id", n.OrganizationID,
		"status", n.Status,
		"has_code", n.Code != "",
	)
	return nil
}
