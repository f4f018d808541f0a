// Package reaper runs the periodic expiry sweeps: pending claims whose pickup
// window has closed, and donations past their expiry. Every expiry is a
// conditional transition in the claim service, so a sweep racing a
// verification or another instance only ever loses cleanly.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	claimmodels "foodlink/internal/claim/models"
	donationmodels "foodlink/internal/donation/models"
	"foodlink/pkg/requestcontext"
)

// Expirer is the slice of the claim service the sweeps drive.
type Expirer interface {
	TimedOutClaims(ctx context.Context, limit int) ([]*claimmodels.Claim, error)
	ExpireClaim(ctx context.Context, c *claimmodels.Claim) (bool, error)
	OverdueDonations(ctx context.Context, limit int) ([]*donationmodels.Donation, error)
	ExpireDonation(ctx context.Context, d *donationmodels.Donation) (bool, error)
}

const (
	sweepClaims    = "claims"
	sweepDonations = "donations"

	defaultClaimInterval    = time.Minute
	defaultDonationInterval = 5 * time.Minute
	defaultBatchSize        = 200
	defaultLockTTL          = 50 * time.Second
)

// Report summarises one sweep. Lost counts candidates another writer moved
// first.
type Report struct {
	Scanned int
	Expired int
	Lost    int
	Failed  int
}

type Reaper struct {
	expirer          Expirer
	logger           *slog.Logger
	metrics          *Metrics
	locker           Locker
	claimInterval    time.Duration
	donationInterval time.Duration
	batchSize        int
	lockTTL          time.Duration
}

type Option func(*Reaper)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(r *Reaper) { r.metrics = m } }

// WithLocker coordinates sweeps across instances. Without one every instance
// sweeps.
func WithLocker(l Locker) Option { return func(r *Reaper) { r.locker = l } }

func WithClaimInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.claimInterval = d
		}
	}
}

func WithDonationInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.donationInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

func New(expirer Expirer, opts ...Option) (*Reaper, error) {
	if expirer == nil {
		return nil, errors.New("expirer is required")
	}
	r := &Reaper{
		expirer:          expirer,
		logger:           slog.Default(),
		claimInterval:    defaultClaimInterval,
		donationInterval: defaultDonationInterval,
		batchSize:        defaultBatchSize,
		lockTTL:          defaultLockTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run sweeps on both cadences until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.loop(ctx, sweepClaims, r.claimInterval, r.SweepClaims) })
	g.Go(func() error { return r.loop(ctx, sweepDonations, r.donationInterval, r.SweepDonations) })
	return g.Wait()
}

func (r *Reaper) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) (Report, error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "expiry sweep failed", "sweep", name, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepClaims expires every pending claim whose buffer closed before now.
func (r *Reaper) SweepClaims(ctx context.Context) (Report, error) {
	return r.sweep(ctx, sweepClaims, func(ctx context.Context) (int, int, int, error) {
		batch, err := r.expirer.TimedOutClaims(ctx, r.batchSize)
		if err != nil {
			return 0, 0, 0, err
		}
		expired, lost := 0, 0
		for _, c := range batch {
			ok, err := r.expirer.ExpireClaim(ctx, c)
			switch {
			case err != nil:
				r.logger.WarnContext(ctx, "claim expiry failed", "claim_id", c.ID, "error", err)
			case ok:
				expired++
			default:
				lost++
			}
		}
		return len(batch), expired, lost, nil
	})
}

// SweepDonations expires every available or claimed donation past its
// expiry, cascading to its pending claim.
func (r *Reaper) SweepDonations(ctx context.Context) (Report, error) {
	return r.sweep(ctx, sweepDonations, func(ctx context.Context) (int, int, int, error) {
		batch, err := r.expirer.OverdueDonations(ctx, r.batchSize)
		if err != nil {
			return 0, 0, 0, err
		}
		expired, lost := 0, 0
		for _, d := range batch {
			ok, err := r.expirer.ExpireDonation(ctx, d)
			switch {
			case err != nil:
				r.logger.WarnContext(ctx, "donation expiry failed", "donation_id", d.ID, "error", err)
			case ok:
				expired++
			default:
				lost++
			}
		}
		return len(batch), expired, lost, nil
	})
}

// sweep pins one "now" for the whole run and drains batches until a short
// batch. A batch that made no progress ends the run so failing rows are
// retried on the next tick instead of in a hot loop.
func (r *Reaper) sweep(ctx context.Context, name string, batch func(context.Context) (scanned, expired, lost int, err error)) (Report, error) {
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
	started := time.Now()

	if r.locker != nil {
		release, ok, err := r.locker.Acquire(ctx, name, r.lockTTL)
		switch {
		case err != nil:
			r.logger.WarnContext(ctx, "reaper lock unavailable, sweeping anyway", "sweep", name, "error", err)
		case !ok:
			r.metrics.skipped(name)
			r.logger.DebugContext(ctx, "expiry sweep held elsewhere", "sweep", name)
			return Report{}, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					r.logger.WarnContext(ctx, "reaper lock release failed", "sweep", name, "error", err)
				}
			}()
		}
	}

	var report Report
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		scanned, expired, lost, err := batch(ctx)
		if err != nil {
			r.metrics.observe(name, report, time.Since(started))
			return report, err
		}
		report.Scanned += scanned
		report.Expired += expired
		report.Lost += lost
		report.Failed += scanned - expired - lost
		if scanned < r.batchSize || expired+lost == 0 {
			break
		}
	}

	r.metrics.observe(name, report, time.Since(started))
	if report.Scanned > 0 {
		r.logger.InfoContext(ctx, "expiry sweep finished",
			"sweep", name,
			"scanned", report.Scanned,
			"expired", report.Expired,
			"lost", report.Lost,
			"failed", report.Failed,
		)
	}
	return report, nil
}
