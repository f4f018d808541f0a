package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"foodlink/internal/claim/models"
)

// Metrics counts claim lifecycle outcomes.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	LostRaces      *prometheus.CounterVec
	CodeRejections prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_claim_transitions_total",
			Help: "Claims entering each status, by the path that moved them",
		}, []string{"status", "source"}),
		LostRaces: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "foodlink_claim_lost_races_total",
			Help: "Conditional writes that found the record already moved",
		}, []string{"operation"}),
		CodeRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "foodlink_claim_code_rejections_total",
			Help: "Verification attempts with an unknown or wrong code",
		}),
	}
}

func (m *Metrics) transition(status models.Status, source string) {
	if m != nil {
		m.Transitions.WithLabelValues(string(status), source).Inc()
	}
}

func (m *Metrics) lostRace(op string) {
	if m != nil {
		m.LostRaces.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) codeRejected() {
	if m != nil {
		m.CodeRejections.Inc()
	}
}
