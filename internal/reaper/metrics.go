package reaper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records sweep outcomes per sweep kind ("claims" or "donations").
type Metrics struct {
	Runs     *prometheus.CounterVec
	Skipped  *prometheus.CounterVec
	Expired  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_reaper_runs_total",
			Help: "Expiry sweeps started",
		}, []string{"sweep"}),
		Skipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_reaper_skipped_total",
			Help: "Expiry sweeps skipped because another instance held the lock",
		}, []string{"sweep"}),
		Expired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_reaper_expired_total",
			Help: "Records expired by a sweep",
		}, []string{"sweep"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_reaper_failures_total",
			Help: "Records a sweep failed to expire",
		}, []string{"sweep"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodlink_reaper_sweep_duration_seconds",
			Help:    "Wall time of one expiry sweep",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
}

func (m *Metrics) observe(sweep string, r Report, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(sweep).Inc()
	m.Expired.WithLabelValues(sweep).Add(float64(r.Expired))
	m.Failures.WithLabelValues(sweep).Add(float64(r.Failed))
	m.Duration.WithLabelValues(sweep).Observe(elapsed.Seconds())
}

func (m *Metrics) skipped(sweep string) {
	if m != nil {
		m.Skipped.WithLabelValues(sweep).Inc()
	}
}
