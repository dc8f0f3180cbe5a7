package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors, labelled by the target set with WithTarget.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pos",
		Subsystem: "backend",
		Name:      "breaker_state",
		Help:      "Backend breaker position: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pos",
		Subsystem: "backend",
		Name:      "breaker_transitions_total",
		Help:      "Backend breaker state changes.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pos",
		Subsystem: "backend",
		Name:      "breaker_opened_total",
		Help:      "Times the backend breaker opened.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
