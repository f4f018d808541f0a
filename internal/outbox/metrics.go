package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts outbox dispatch outcomes per entry kind.
type Metrics struct {
	Dispatched *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Dead       *prometheus.CounterVec
	Deferred   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_outbox_dispatched_total",
			Help: "Outbox entries handled successfully",
		}, []string{"kind"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_outbox_failed_total",
			Help: "Outbox dispatch attempts that failed and were rescheduled",
		}, []string{"kind"}),
		Dead: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_outbox_dead_total",
			Help: "Outbox entries abandoned after exhausting their attempts",
		}, []string{"kind"}),
		Deferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_outbox_deferred_total",
			Help: "Leased outbox entries left for a later lease because the batch ran long",
		}),
	}
}

func (m *Metrics) incDispatched(k Kind) {
	if m != nil {
		m.Dispatched.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) incFailed(k Kind) {
	if m != nil {
		m.Failed.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) incDead(k Kind) {
	if m != nil {
		m.Dead.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) addDeferred(n int) {
	if m != nil {
		m.Deferred.Add(float64(n))
	}
}
