package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "proride",
		Subsystem: "gateway",
		Name:      "breaker_state",
		Help:      "Breaker position per dependency: 0=closed, 1=open, 2=half-open.",
	}, []string{"breaker"})
	breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proride",
		Subsystem: "gateway",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes.",
	}, []string{"breaker", "from", "to"})
	breakerOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proride",
		Subsystem: "gateway",
		Name:      "breaker_opened_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"breaker"})
	outboundAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proride",
		Subsystem: "gateway",
		Name:      "outbound_attempts_total",
		Help:      "Outbound HTTP attempts by dependency and outcome.",
	}, []string{"breaker", "outcome"})
)

// Collectors exposes the breaker metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{breakerState, breakerTransitions, breakerOpened, outboundAttempts}
}

func init() {
	prometheus.MustRegister(Collectors()...)
}
