package runner

import "github.com/prometheus/client_golang/prometheus"

// Resolve outcome labels.
const (
	outcomeHealthy      = "healthy"
	outcomeTimeout      = "timeout"
	outcomeCancelled    = "cancelled"
	outcomeAcquireError = "acquire_error"
)

var (
	resolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncdeck_runner_resolves_total",
			Help: "Total runner resolve attempts by deployment mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	healthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncdeck_runner_health_failures_total",
			Help: "Total swallowed health-check failures observed while polling.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(resolvesTotal)
	prometheus.MustRegister(healthFailuresTotal)
}
