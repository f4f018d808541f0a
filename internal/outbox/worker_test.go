package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodlink/internal/outbox"
	"foodlink/internal/outbox/store"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newWorker(t *testing.T, s outbox.Store, opts ...outbox.Option) *outbox.Worker {
	t.Helper()
	opts = append([]outbox.Option{
		outbox.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		outbox.WithBaseRetryDelay(10 * time.Second),
		outbox.WithMaxAttempts(3),
	}, opts...)
	w, err := outbox.NewWorker(s, tx.NewLockRunner(), slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	require.NoError(t, err)
	return w
}

func appendEntry(t *testing.T, s *store.InMemoryStore, kind outbox.Kind) *outbox.Entry {
	t.Helper()
	id := uuid.New()
	e, err := outbox.NewEntry(kind, id, outbox.DonationDeleted{DonationID: id}, t0)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), e))
	return e
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	_, err := outbox.NewWorker(nil, tx.NewLockRunner(), nil)
	assert.Error(t, err)
	_, err = outbox.NewWorker(store.NewInMemory(), nil, nil)
	assert.Error(t, err)
	_, err = outbox.NewWorker(store.NewInMemory(), tx.NewLockRunner(), nil,
		outbox.WithLeaseDuration(time.Second), outbox.WithDispatchTimeout(time.Second))
	assert.Error(t, err, "dispatch must fit inside the lease")
}

func TestDrainDispatchesByKind(t *testing.T) {
	s := store.NewInMemory()
	deleted := appendEntry(t, s, outbox.KindDonationDeleted)
	appendEntry(t, s, outbox.KindClaimCreated)

	var seen []outbox.Kind
	w := newWorker(t, s)
	w.Register(outbox.HandlerFunc(func(_ context.Context, e *outbox.Entry) error {
		seen = append(seen, e.Kind)
		payload, err := outbox.Decode[outbox.DonationDeleted](e)
		require.NoError(t, err)
		assert.Equal(t, deleted.AggregateID, payload.DonationID)
		return nil
	}), outbox.KindDonationDeleted)
	w.Register(outbox.HandlerFunc(func(_ context.Context, e *outbox.Entry) error {
		seen = append(seen, e.Kind)
		return nil
	}), outbox.KindClaimCreated, outbox.KindClaimDelivered)

	n, err := w.Drain(requestcontext.WithTime(context.Background(), t0))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []outbox.Kind{outbox.KindDonationDeleted, outbox.KindClaimCreated}, seen)

	for _, e := range s.Entries() {
		assert.Equal(t, outbox.StatusDone, e.Status)
		require.NotNil(t, e.ProcessedAt)
	}
}

func TestDrainRetriesInProcessBeforeRescheduling(t *testing.T) {
	s := store.NewInMemory()
	appendEntry(t, s, outbox.KindDonationDeleted)

	var calls atomic.Int32
	w := newWorker(t, s)
	w.Register(outbox.HandlerFunc(func(context.Context, *outbox.Entry) error {
		if calls.Add(1) < 3 {
			return errors.New("attribute store unreachable")
		}
		return nil
	}), outbox.KindDonationDeleted)

	n, err := w.Drain(requestcontext.WithTime(context.Background(), t0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDrainReschedulesWithExponentialDelayThenDies(t *testing.T) {
	s := store.NewInMemory()
	appendEntry(t, s, outbox.KindDonationDeleted)

	w := newWorker(t, s)
	w.Register(outbox.HandlerFunc(func(context.Context, *outbox.Entry) error {
		return errors.New("boom")
	}), outbox.KindDonationDeleted)

	ctx := requestcontext.WithTime(context.Background(), t0)
	_, err := w.Drain(ctx)
	require.NoError(t, err)

	e := s.Entries()[0]
	assert.Equal(t, outbox.StatusPending, e.Status)
	assert.Equal(t, 1, e.Attempts)
	assert.Equal(t, "boom", e.LastError)
	assert.Equal(t, t0.Add(10*time.Second), e.NextAttemptAt)

	// not yet due
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, s.Entries()[0].Attempts)

	second := t0.Add(10 * time.Second)
	_, err = w.Drain(requestcontext.WithTime(context.Background(), second))
	require.NoError(t, err)
	e = s.Entries()[0]
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, second.Add(20*time.Second), e.NextAttemptAt)

	_, err = w.Drain(requestcontext.WithTime(context.Background(), e.NextAttemptAt))
	require.NoError(t, err)
	e = s.Entries()[0]
	assert.Equal(t, 3, e.Attempts)
	assert.Equal(t, outbox.StatusDead, e.Status)
}

func TestDrainMarksUnknownKindDead(t *testing.T) {
	s := store.NewInMemory()
	appendEntry(t, s, outbox.KindClaimExpired)

	w := newWorker(t, s)
	_, err := w.Drain(requestcontext.WithTime(context.Background(), t0))
	require.NoError(t, err)

	e := s.Entries()[0]
	assert.Equal(t, outbox.StatusDead, e.Status)
	assert.Contains(t, e.LastError, "no handler")
}

// shortUnitRunner behaves like a SQL runner whose units time out quickly:
// work past the deadline fails and the unit does not commit.
type shortUnitRunner struct {
	timeout time.Duration
}

func (r shortUnitRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// deadlineStore refuses writes on an expired context, like a database call.
type deadlineStore struct {
	*store.InMemoryStore
}

func (s deadlineStore) Lease(ctx context.Context, now, until time.Time, limit int) ([]*outbox.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.InMemoryStore.Lease(ctx, now, until, limit)
}

func (s deadlineStore) MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.MarkDone(ctx, id, now)
}

func (s deadlineStore) MarkFailed(ctx context.Context, id uuid.UUID, f outbox.Failure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.MarkFailed(ctx, id, f)
}

func TestSlowDispatchDoesNotOutliveTheUnit(t *testing.T) {
	mem := store.NewInMemory()
	for range 3 {
		appendEntry(t, mem, outbox.KindDonationDeleted)
	}

	w, err := outbox.NewWorker(deadlineStore{mem}, shortUnitRunner{timeout: 20 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		outbox.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	require.NoError(t, err)

	published := map[uuid.UUID]int{}
	w.Register(outbox.HandlerFunc(func(_ context.Context, e *outbox.Entry) error {
		time.Sleep(30 * time.Millisecond)
		published[e.ID]++
		return nil
	}), outbox.KindDonationDeleted)

	ctx := requestcontext.WithTime(context.Background(), t0)
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, e := range mem.Entries() {
		assert.Equal(t, outbox.StatusDone, e.Status)
		assert.Equal(t, 1, published[e.ID])
	}

	n, err = w.Drain(requestcontext.WithTime(context.Background(), t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is published twice")
}

func TestDrainLeavesRestOfBatchWhenLeaseRunsShort(t *testing.T) {
	s := store.NewInMemory()
	for range 3 {
		appendEntry(t, s, outbox.KindDonationDeleted)
	}

	w := newWorker(t, s,
		outbox.WithLeaseDuration(50*time.Millisecond),
		outbox.WithDispatchTimeout(30*time.Millisecond))
	w.Register(outbox.HandlerFunc(func(context.Context, *outbox.Entry) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}), outbox.KindDonationDeleted)

	n, err := w.Drain(requestcontext.WithTime(context.Background(), t0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var pending []*outbox.Entry
	for _, e := range s.Entries() {
		if e.Status == outbox.StatusPending {
			pending = append(pending, e)
		}
	}
	require.Len(t, pending, 2)
	for _, e := range pending {
		assert.Zero(t, e.Attempts)
		assert.Equal(t, t0.Add(50*time.Millisecond), e.NextAttemptAt, "due again once the lease ends")
	}
}

func TestLeaseHidesEntriesUntilItLapses(t *testing.T) {
	s := store.NewInMemory()
	appendEntry(t, s, outbox.KindDonationDeleted)
	appendEntry(t, s, outbox.KindClaimCreated)
	ctx := context.Background()

	leased, err := s.Lease(ctx, t0, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, leased, 2)

	again, err := s.Lease(ctx, t0.Add(time.Second), t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	lapsed, err := s.Lease(ctx, t0.Add(time.Minute), t0.Add(2*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, lapsed, 1)
}

func TestKindIsClaimEvent(t *testing.T) {
	assert.True(t, outbox.KindClaimCreated.IsClaimEvent())
	assert.True(t, outbox.KindClaimExpired.IsClaimEvent())
	assert.False(t, outbox.KindDonationUpserted.IsClaimEvent())
}
