package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"foodlink/internal/outbox"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_notify_published_total",
			Help: "Claim notifications handed to the publisher",
		}, []string{"type"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_notify_failed_total",
			Help: "Claim notifications the publisher rejected",
		}, []string{"type"}),
	}
}

func (m *Metrics) published(k outbox.Kind) {
	if m != nil {
		m.Published.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) failed(k outbox.Kind) {
	if m != nil {
		m.Failed.WithLabelValues(string(k)).Inc()
	}
}
