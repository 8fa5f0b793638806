package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instruments holds the Prometheus collectors the service exports. They are
// constructed against an explicit registry so test harnesses never share
// collector state.
type Instruments struct {
	TurnsTotal             *prometheus.CounterVec
	RoutingViolationsTotal prometheus.Counter
	OperationsAborted      prometheus.Counter
	TurnDurationSeconds    prometheus.Histogram
}

// NewInstruments registers the service collectors on the given registry.
func NewInstruments(reg prometheus.Registerer) *Instruments {
	factory := promauto.With(reg)
	return &Instruments{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scandesk_turns_total",
				Help: "Total number of conversation turns processed",
			},
			[]string{"intent", "status"}, // status: success, error
		),
		RoutingViolationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scandesk_routing_violations_total",
				Help: "Total number of illegal transitions proposed by handlers",
			},
		),
		OperationsAborted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scandesk_operations_aborted_total",
				Help: "Total number of workflows aborted by explicit cancellation",
			},
		),
		TurnDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scandesk_turn_duration_seconds",
				Help:    "Conversation turn processing duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),
	}
}
