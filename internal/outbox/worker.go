package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

// Store is the persistence the worker drains. Lease pushes the due entries it
// returns to until, so other workers skip them while they are dispatched; an
// entry whose lease lapses without an outcome becomes due again.
type Store interface {
	Lease(ctx context.Context, now, until time.Time, limit int) ([]*Entry, error)
	MarkDone(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, f Failure) error
}

// Failure describes a failed dispatch to record against an entry.
type Failure struct {
	Attempts      int
	Error         string
	NextAttemptAt time.Time
	Dead          bool
}

// Handler performs the side effect an entry describes.
type Handler interface {
	Handle(ctx context.Context, e *Entry) error
}

type HandlerFunc func(ctx context.Context, e *Entry) error

func (f HandlerFunc) Handle(ctx context.Context, e *Entry) error { return f(ctx, e) }

var errNoHandler = errors.New("no handler registered")

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
	defaultMaxAttempts  = 8
	defaultBaseDelay    = 5 * time.Second
	defaultLease        = 5 * time.Minute
	defaultDispatch     = 30 * time.Second
	maxRetryDelay       = time.Hour
	inProcessRetries    = 2
)

// Worker drains due entries and dispatches them by kind. Only the lease and
// each recorded outcome run inside a unit; dispatch itself holds no
// transaction.
type Worker struct {
	store        Store
	runner       tx.Runner
	logger       *slog.Logger
	metrics      *Metrics
	handlers     map[Kind]Handler
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
	lease        time.Duration
	dispatchMax  time.Duration
	newBackOff   func() backoff.BackOff
}

type Option func(*Worker)

func WithMetrics(m *Metrics) Option { return func(w *Worker) { w.metrics = m } }

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBaseRetryDelay(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.baseDelay = d
		}
	}
}

// WithLeaseDuration sets how long a leased batch stays hidden from other
// workers.
func WithLeaseDuration(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithDispatchTimeout bounds one entry's dispatch, in-process retries
// included.
func WithDispatchTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.dispatchMax = d
		}
	}
}

// WithBackOff replaces the in-process retry policy. Tests pass a zero backoff.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(w *Worker) { w.newBackOff = f }
}

func NewWorker(store Store, runner tx.Runner, logger *slog.Logger, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if runner == nil {
		return nil, errors.New("tx runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		store:        store,
		runner:       runner,
		logger:       logger,
		handlers:     make(map[Kind]Handler),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		lease:        defaultLease,
		dispatchMax:  defaultDispatch,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.dispatchMax >= w.lease {
		return nil, fmt.Errorf("dispatch timeout %s must be shorter than the lease %s", w.dispatchMax, w.lease)
	}
	return w, nil
}

// Register binds a handler to one or more kinds.
func (w *Worker) Register(h Handler, kinds ...Kind) {
	for _, k := range kinds {
		w.handlers[k] = h
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain leases one batch of due entries, dispatches them and reports how
// many succeeded. It stops early when the lease could lapse before the next
// dispatch finishes; the rest of the batch becomes due when the lease ends.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	var entries []*Entry
	err := w.runner.RunInTx(ctx, func(ctx context.Context) error {
		leased, err := w.store.Lease(ctx, now, now.Add(w.lease), w.batchSize)
		entries = leased
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("lease due entries: %w", err)
	}

	started := time.Now()
	dispatched := 0
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}
		if time.Since(started)+w.dispatchMax > w.lease {
			w.metrics.addDeferred(len(entries) - i)
			w.logger.WarnContext(ctx, "outbox lease running out, leaving rest of batch",
				"remaining", len(entries)-i)
			break
		}
		if w.process(ctx, e, now) {
			dispatched++
		}
	}
	return dispatched, nil
}

func (w *Worker) process(ctx context.Context, e *Entry, now time.Time) bool {
	dctx, cancel := context.WithTimeout(ctx, w.dispatchMax)
	err := w.dispatch(dctx, e)
	cancel()
	if err == nil {
		if markErr := w.runner.RunInTx(ctx, func(ctx context.Context) error {
			return w.store.MarkDone(ctx, e.ID, now)
		}); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark outbox entry done",
				"entry_id", e.ID, "kind", e.Kind, "error", markErr)
			return false
		}
		w.metrics.incDispatched(e.Kind)
		return true
	}

	attempts := e.Attempts + 1
	failure := Failure{
		Attempts:      attempts,
		Error:         err.Error(),
		NextAttemptAt: now.Add(w.retryDelay(e.Attempts)),
		Dead:          attempts >= w.maxAttempts || errors.Is(err, errNoHandler),
	}
	if failure.Dead {
		w.metrics.incDead(e.Kind)
		w.logger.ErrorContext(ctx, "outbox entry abandoned",
			"entry_id", e.ID, "kind", e.Kind, "attempts", attempts, "error", err)
	} else {
		w.metrics.incFailed(e.Kind)
		w.logger.WarnContext(ctx, "outbox dispatch failed, rescheduled",
			"entry_id", e.ID, "kind", e.Kind, "attempts", attempts,
			"next_attempt_at", failure.NextAttemptAt, "error", err)
	}
	if markErr := w.runner.RunInTx(ctx, func(ctx context.Context) error {
		return w.store.MarkFailed(ctx, e.ID, failure)
	}); markErr != nil {
		w.logger.ErrorContext(ctx, "failed to record outbox failure",
			"entry_id", e.ID, "kind", e.Kind, "error", markErr)
	}
	return false
}

func (w *Worker) dispatch(ctx context.Context, e *Entry) error {
	h, ok := w.handlers[e.Kind]
	if !ok {
		return fmt.Errorf("%w for kind %s", errNoHandler, e.Kind)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), inProcessRetries), ctx)
	return backoff.Retry(func() error { return h.Handle(ctx, e) }, b)
}

// retryDelay is base·2^attempts, capped.
func (w *Worker) retryDelay(attempts int) time.Duration {
	d := w.baseDelay
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
