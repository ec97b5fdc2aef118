package resilience

import "github.com/prometheus/client_golang/prometheus"

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state: 0=closed, 1=half_open, 2=open",
	},
	[]string{"name"},
)

var breakerTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Circuit breaker state transitions",
	},
	[]string{"name", "to"},
)

var poolInUse = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "pool",
		Name:      "connections_in_use",
		Help:      "Connections currently acquired from the pool",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(breakerState, breakerTransitions, poolInUse)
}

func stateGaugeValue(s BreakerState) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
