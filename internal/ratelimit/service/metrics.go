package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Failures      prometheus.Counter
	Lockouts      prometheus.Counter
	Refused       prometheus.Counter
	StoreFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_lockout_failures_recorded_total",
			Help: "Failed code attempts recorded against a lockout key",
		}),
		Lockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_lockout_locks_total",
			Help: "Keys locked after reaching the attempt limit",
		}),
		Refused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_lockout_refused_total",
			Help: "Attempts refused because the key was locked",
		}),
		StoreFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_lockout_store_failures_total",
			Help: "Lockout store calls that failed and were let through",
		}, []string{"operation"}),
	}
}

func (m *Metrics) failure() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) locked() {
	if m != nil {
		m.Lockouts.Inc()
	}
}

func (m *Metrics) refused() {
	if m != nil {
		m.Refused.Inc()
	}
}

func (m *Metrics) storeFailure(op string) {
	if m != nil {
		m.StoreFailures.WithLabelValues(op).Inc()
	}
}
