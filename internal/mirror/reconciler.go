package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"foodlink/internal/attributes"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

const defaultReconcileInterval = time.Hour

// Report summarises one reconciliation pass. Orphans are facts with no
// record; Missing are records with no facts.
type Report struct {
	AttributeCount int `json:"attributeCount"`
	RecordCount    int `json:"recordCount"`
	Orphans        int `json:"orphans"`
	Deleted        int `json:"deleted"`
	Missing        int `json:"missing"`
	Restored       int `json:"restored"`
	Failed         int `json:"failed"`
}

// Reconciler compares the two stores and repairs the attribute store. Passes
// never overlap: a manual trigger while a pass runs waits for it.
type Reconciler struct {
	attrs    attributes.Store
	records  Records
	logger   *slog.Logger
	metrics  *Metrics
	interval time.Duration
	mu       sync.Mutex
}

type ReconcilerOption func(*Reconciler)

func WithReconcileLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithReconcileMetrics(m *Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func WithInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewReconciler(attrs attributes.Store, records Records, opts ...ReconcilerOption) (*Reconciler, error) {
	if attrs == nil {
		return nil, errors.New("attribute store is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	r := &Reconciler{
		attrs:    attrs,
		records:  records,
		logger:   slog.Default(),
		interval: defaultReconcileInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run reconciles on the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := r.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
		}
	}
}

// Reconcile runs one pass. Each orphan is re-checked against the record
// store before deletion, so a donation created after the listings is kept.
func (r *Reconciler) Reconcile(ctx context.Context) (report Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { r.metrics.reconciled(report, err) }()

	var mirrored, recorded []domain.DonationID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := r.attrs.ListDonationIDs(gctx)
		if err != nil {
			return fmt.Errorf("list attribute store ids: %w", err)
		}
		mirrored = ids
		return nil
	})
	g.Go(func() error {
		ids, err := r.records.ListIDs(gctx)
		if err != nil {
			return fmt.Errorf("list record store ids: %w", err)
		}
		recorded = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report.AttributeCount = len(mirrored)
	report.RecordCount = len(recorded)
	orphans := difference(mirrored, recorded)
	missing := difference(recorded, mirrored)
	report.Orphans = len(orphans)
	report.Missing = len(missing)

	for _, id := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		deleted, err := r.deleteOrphan(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			r.logger.WarnContext(ctx, "failed to delete orphaned facts", "donation_id", id, "error", err)
		case deleted:
			report.Deleted++
		}
	}

	if len(missing) > 0 {
		restored, err := r.restore(ctx, missing)
		report.Restored = restored
		if err != nil {
			report.Failed += len(missing) - restored
			r.logger.WarnContext(ctx, "failed to restore missing facts", "missing", len(missing), "error", err)
		}
	}

	r.logger.InfoContext(ctx, "reconciliation finished",
		"attribute_count", report.AttributeCount,
		"record_count", report.RecordCount,
		"orphans", report.Orphans,
		"deleted", report.Deleted,
		"missing", report.Missing,
		"restored", report.Restored,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *Reconciler) deleteOrphan(ctx context.Context, id domain.DonationID) (bool, error) {
	_, err := r.records.FindByID(ctx, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return false, fmt.Errorf("re-check record: %w", err)
	}
	if err := r.attrs.DeleteDonation(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) restore(ctx context.Context, ids []domain.DonationID) (int, error) {
	records, err := r.records.FindByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	restored := 0
	var errs []error
	for _, d := range records {
		if err := r.attrs.UpsertDonation(ctx, attributes.FactsFrom(d)); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", d.ID, err))
			continue
		}
		restored++
	}
	return restored, errors.Join(errs...)
}

// difference returns the ids in a that are absent from b.
func difference(a, b []domain.DonationID) []domain.DonationID {
	set := make(map[domain.DonationID]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []domain.DonationID
	for _, id := range a {
		if _, ok := set[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
