package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcome label values.
const (
	OutcomeRotated  = "rotated"
	OutcomeInvalid  = "invalid"
	OutcomeExpired  = "expired"
	OutcomeReuse    = "reuse_detected"
	OutcomeLostRace = "lost_race"
	OutcomeError    = "error"
)

// Metrics holds the session subsystem collectors. A nil *Metrics records nothing.
type Metrics struct {
	refreshOutcomes *prometheus.CounterVec
	issued          prometheus.Counter
	sweepDeleted    prometheus.Counter
	sweepErrors     prometheus.Counter
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		refreshOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "refresh_outcomes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		issued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_issued_total",
			Help:      "Sessions created at login or registration.",
		}),
		sweepDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sweep_deleted_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
		sweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sweep_errors_total",
			Help:      "Sweeper runs that failed.",
		}),
	}
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) swept(n int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweepErrors.Inc()
		return
	}
	m.sweepDeleted.Add(float64(n))
}
