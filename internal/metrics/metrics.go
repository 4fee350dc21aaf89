package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	admissionEvaluatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_admission_evaluated_total",
		Help: "Total number of requests evaluated by the admission engine",
	})
	admissionDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_admission_denied_total",
		Help: "Total number of requests denied, by reason",
	}, []string{"reason"})
	violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_violations_total",
		Help: "Total number of detected violations, by category",
	}, []string{"category"})
	blockedIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_blocked_identities",
		Help: "Number of identities currently blocked",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(admissionEvaluatedTotal, admissionDeniedTotal, violationsTotal, blockedIdentities)
}

// IncEvaluated increments the evaluated requests counter.
func IncEvaluated() { admissionEvaluatedTotal.Inc() }

// IncDenied increments the denied requests counter for a reason.
func IncDenied(reason string) { admissionDeniedTotal.WithLabelValues(reason).Inc() }

// IncViolation increments the violation counter for a category.
func IncViolation(category string) { violationsTotal.WithLabelValues(category).Inc() }

// SetBlocked records the current number of blocked identities.
func SetBlocked(n int) { blockedIdentities.Set(float64(n)) }
