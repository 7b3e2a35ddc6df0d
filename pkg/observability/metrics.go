// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the identity service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// HashBuckets defines histogram buckets suited for deliberately slow
// password hashing, ranging from 1ms to 5s.
var HashBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthenticationsTotal counts scheme evaluations by scheme and decision.
	AuthenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_authentications_total",
			Help: "Authentication scheme evaluations",
		},
		[]string{"scheme", "decision"},
	)

	// PasswordHashDuration records hash and verify latency per hasher.
	PasswordHashDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_password_hash_duration_seconds",
			Help:    "Password hashing latency",
			Buckets: HashBuckets,
		},
		[]string{"hasher", "operation"},
	)

	// HashWorkersBusy tracks the number of hash computations in flight.
	HashWorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "identity_hash_workers_busy",
			Help: "Password hash computations in flight",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthenticationsTotal,
		PasswordHashDuration,
		HashWorkersBusy,
		RateLimitRejectedTotal,
	)
}
