package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Study metrics
	StudiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bentham_studies_total",
			Help: "Total number of studies by status",
		},
		[]string{"status"},
	)

	StudiesAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bentham_studies_admitted_total",
			Help: "Total number of studies accepted for execution",
		},
	)

	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bentham_jobs_total",
			Help: "Total number of jobs by status",
		},
		[]string{"status"},
	)

	JobsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bentham_jobs_executed_total",
			Help: "Total number of executed jobs by surface and outcome",
		},
		[]string{"surface", "outcome"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bentham_job_duration_seconds",
			Help:    "End-to-end job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	// Recovery metrics
	RecoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bentham_recovery_attempts_total",
			Help: "Total number of recovery attempts by surface and strategy",
		},
		[]string{"surface", "strategy"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bentham_circuit_state",
			Help: "Circuit breaker state per surface (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"surface"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bentham_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bentham_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bentham_rate_limited_total",
			Help: "Total number of requests rejected by per-key rate limiting",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(StudiesTotal)
	prometheus.MustRegister(StudiesAdmitted)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsExecuted)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(RecoveryAttempts)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RateLimitedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
