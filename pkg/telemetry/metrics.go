package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tunogya/coil/pkg/model"
)

// Metrics holds the Prometheus collectors for detection and labelling.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BarsProcessed  prometheus.Counter
	Transitions    *prometheus.CounterVec
	Outcomes       *prometheus.CounterVec
	UpdateDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coil_bars_processed_total",
			Help: "Total number of bars that produced a metrics snapshot",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coil_pattern_transitions_total",
			Help: "Pattern lifecycle transitions by target phase",
		}, []string{"phase"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coil_pattern_outcomes_total",
			Help: "Labelled pattern outcomes by class",
		}, []string{"class"}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coil_tracker_update_duration_seconds",
			Help:    "Duration of a single tracker update",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.BarsProcessed, m.Transitions, m.Outcomes, m.UpdateDuration)
	}
	return m
}

// ObserveUpdate records one processed bar and how long the update took
func (m *Metrics) ObserveUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.BarsProcessed.Inc()
	m.UpdateDuration.Observe(d.Seconds())
}

// ObserveTransition records a transition into phase
func (m *Metrics) ObserveTransition(phase model.Phase) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(phase.String()).Inc()
}

// ObserveOutcome records a labelled outcome
func (m *Metrics) ObserveOutcome(class model.OutcomeClass) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(class.String()).Inc()
}
