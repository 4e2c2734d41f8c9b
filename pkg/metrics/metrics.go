package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qmdoc"

var (
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "transitions_total", Help: "Lifecycle actions by action and result (success, denied, failure)."},
		[]string{"action", "result"},
	)
	TransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "transition_duration_seconds", Help: "Duration of lifecycle actions including rendering and storage.", Buckets: prometheus.DefBuckets},
		[]string{"action"},
	)
	ReplicationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "replication_failures_total", Help: "Released artifacts that could not be replicated to object storage."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Transitions)
	reg.MustRegister(TransitionDuration)
	reg.MustRegister(ReplicationFailures)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
