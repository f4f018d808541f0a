package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Latency    prometheus.Histogram
	Candidates prometheus.Histogram
	Divergence *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "foodlink_search_duration_seconds",
			Help:    "Search latency including attribute query and hydration",
			Buckets: prometheus.DefBuckets,
		}),
		Candidates: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "foodlink_search_candidates",
			Help:    "Candidates returned by the attribute store per search",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 60, 80, 100},
		}),
		Divergence: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_search_divergence_total",
			Help: "Candidates dropped because the record store disagreed with the attribute store",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observe(start time.Time, candidates int) {
	if m != nil {
		m.Latency.Observe(time.Since(start).Seconds())
		m.Candidates.Observe(float64(candidates))
	}
}

func (m *Metrics) diverged(reason string, n int) {
	if m != nil && n > 0 {
		m.Divergence.WithLabelValues(reason).Add(float64(n))
	}
}
