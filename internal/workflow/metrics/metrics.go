package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the approval workflow engine.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	Failures          *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers workflow metrics with the default registry. Call once per
// process.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_workflow_transitions_total",
			Help: "Committed workflow transitions by approval log action",
		}, []string{"action"}),
		Conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_workflow_conflicts_total",
			Help: "Operations that lost an optimistic concurrency race or carried a stale version",
		}, []string{"operation"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_workflow_failures_total",
			Help: "Operations refused or failed, by error code",
		}, []string{"operation", "code"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycflow_workflow_operation_duration_seconds",
			Help:    "Duration of workflow engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementTransition(action string) {
	m.Transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementConflict(operation string) {
	m.Conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementFailure(operation, code string) {
	m.Failures.WithLabelValues(operation, code).Inc()
}

// ObserveOperation records the duration of an operation started at start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
