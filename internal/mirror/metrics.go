package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"foodlink/internal/outbox"
)

// Metrics tracks mirror writes and reconciliation outcomes.
type Metrics struct {
	Applied      *prometheus.CounterVec
	ShortCircuit prometheus.Counter
	BreakerOpen  prometheus.Gauge
	Orphans      prometheus.Counter
	Restored     prometheus.Counter
	Reconciles   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Applied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_mirror_applied_total",
			Help: "Outbox entries applied to the attribute store",
		}, []string{"kind"}),
		ShortCircuit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_mirror_short_circuit_total",
			Help: "Mirror writes deferred because the attribute store circuit was open",
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "foodlink_mirror_circuit_open",
			Help: "1 while the attribute store circuit is open",
		}),
		Orphans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_mirror_orphans_deleted_total",
			Help: "Attribute store facts deleted because no record backs them",
		}),
		Restored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_mirror_restored_total",
			Help: "Records re-mirrored because their facts were missing",
		}),
		Reconciles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_mirror_reconcile_runs_total",
			Help: "Reconciliation passes by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) applied(k outbox.Kind) {
	if m != nil {
		m.Applied.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) shortCircuit() {
	if m != nil {
		m.ShortCircuit.Inc()
	}
}

func (m *Metrics) breakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) reconciled(r Report, err error) {
	if m == nil {
		return
	}
	m.Orphans.Add(float64(r.Deleted))
	m.Restored.Add(float64(r.Restored))
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if r.Failed > 0 {
		outcome = "partial"
	}
	m.Reconciles.WithLabelValues(outcome).Inc()
}
