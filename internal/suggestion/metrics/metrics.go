package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for suggestion application and revert.
type Metrics struct {
	// Outcomes by operation (apply, revert) and result code
	Outcomes *prometheus.CounterVec

	// Reclassifications by literal and effective suggestion type
	Reconciled *prometheus.CounterVec

	Duration *prometheus.HistogramVec

	// Post-commit notifier failures by notifier name
	NotifyFailures *prometheus.CounterVec
}

// New registers the suggestion metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg. Tests pass a fresh prometheus.NewRegistry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refkb_suggestion_operations_total",
			Help: "Suggestion apply and revert attempts by outcome",
		}, []string{"operation", "outcome"}),

		Reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refkb_suggestions_reconciled_total",
			Help: "Suggestions applied as a different operation than proposed because the store had drifted",
		}, []string{"from", "to"}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refkb_suggestion_operation_duration_seconds",
			Help:    "Duration of suggestion apply and revert including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "refkb_notify_failures_total",
			Help: "Post-commit change notifications that failed",
		}, []string{"notifier"}),
	}
}

// IncrementOutcome records the result of one apply or revert.
func (m *Metrics) IncrementOutcome(operation, outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementReconciled records a drift-driven reclassification.
func (m *Metrics) IncrementReconciled(from, to string) {
	if m != nil {
		m.Reconciled.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	if m != nil {
		m.Duration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementNotifyFailure(notifier string) {
	if m != nil {
		m.NotifyFailures.WithLabelValues(notifier).Inc()
	}
}
