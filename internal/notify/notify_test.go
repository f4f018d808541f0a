package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodlink/internal/outbox"
)

type recordingPublisher struct {
	sent []Notification
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, n Notification) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, n)
	return nil
}

func claimEntry(t *testing.T, kind outbox.Kind, code string) (*outbox.Entry, outbox.ClaimEvent) {
	t.Helper()
	ev := outbox.ClaimEvent{
		ClaimID:         uuid.New(),
		DonationID:      uuid.New(),
		OrganizationID:  uuid.New(),
		DeliveryMode:    "self_pickup",
		Status:          "pending",
		Code:            code,
		BufferExpiresAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		OccurredAt:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	e, err := outbox.NewEntry(kind, ev.ClaimID, ev, ev.OccurredAt)
	require.NoError(t, err)
	return e, ev
}

func TestHandlerPublishesClaimEvents(t *testing.T) {
	p := &recordingPublisher{}
	h, err := NewHandler(p, nil)
	require.NoError(t, err)

	e, ev := claimEntry(t, outbox.KindClaimCreated, "042917")
	require.NoError(t, h.Handle(context.Background(), e))

	require.Len(t, p.sent, 1)
	assert.Equal(t, "claim.created", p.sent[0].Type)
	assert.Equal(t, ev.ClaimID, p.sent[0].ClaimID)
	assert.Equal(t, "042917", p.sent[0].Code)
	assert.True(t, ev.BufferExpiresAt.Equal(p.sent[0].BufferExpiresAt))
}

func TestHandlerPropagatesPublishFailure(t *testing.T) {
	boom := errors.New("broker unreachable")
	h, err := NewHandler(&recordingPublisher{err: boom}, nil)
	require.NoError(t, err)

	e, _ := claimEntry(t, outbox.KindClaimExpired, "")
	assert.ErrorIs(t, h.Handle(context.Background(), e), boom)
}

func TestHandlerRejectsDonationKinds(t *testing.T) {
	h, err := NewHandler(&recordingPublisher{}, nil)
	require.NoError(t, err)

	e, err := outbox.NewEntry(outbox.KindDonationDeleted, uuid.New(), outbox.DonationDeleted{}, time.Now())
	require.NoError(t, err)
	assert.Error(t, h.Handle(context.Background(), e))
}

func TestLogPublisherNeverLogsTheCode(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	_, ev := claimEntry(t, outbox.KindClaimCreated, "731905")
	require.NoError(t, p.Publish(context.Background(), Notification{Type: "claim.created", ClaimEvent: ev}))

	assert.Contains(t, buf.String(), ev.ClaimID.String())
	assert.NotContains(t, buf.String(), "731905")
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "")
	assert.Error(t, err)
}

func TestNewHandlerRequiresPublisher(t *testing.T) {
	_, err := NewHandler(nil, nil)
	assert.Error(t, err)
}
