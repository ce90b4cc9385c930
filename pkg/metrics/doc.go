/*
Package metrics provides Prometheus metrics collection and exposition for Bentham.

The metrics package defines and registers all Bentham metrics using the Prometheus
client library, providing observability into study throughput, job execution,
surface recovery behavior, and API performance. Metrics are exposed via HTTP
endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Studies: Count by status, admissions       │          │
	│  │  Jobs: Count by status, outcomes, latency   │          │
	│  │  Recovery: Attempts, circuit breaker state  │          │
	│  │  API: Request count, duration, rate limits  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Collector Loop                   │          │
	│  │  - Samples store into gauges every 15s      │          │
	│  │  - Samples circuit states from recovery     │          │
	│  │  - Counters updated inline on the hot path  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Study Metrics:

bentham_studies_total{status}:
  - Type: Gauge
  - Description: Total studies by lifecycle status
  - Example: bentham_studies_total{status="executing"} 3

bentham_studies_admitted_total:
  - Type: Counter
  - Description: Studies accepted for execution (validation passed)

Job Metrics:

bentham_jobs_total{status}:
  - Type: Gauge
  - Description: Total jobs by status (pending/running/succeeded/failed)

bentham_jobs_executed_total{surface, outcome}:
  - Type: Counter
  - Description: Executed jobs by surface and outcome
  - Example: bentham_jobs_executed_total{surface="chatgpt-web",outcome="succeeded"} 120

bentham_job_duration_seconds:
  - Type: Histogram
  - Description: Wall-clock duration of a single job execution, including
    retries and fallback attempts

Recovery Metrics:

bentham_recovery_attempts_total{surface, strategy}:
  - Type: Counter
  - Description: Recovery attempts by surface and strategy
    (primary/cdp_fallback/alternative_surface)

bentham_circuit_state{surface}:
  - Type: Gauge
  - Description: Circuit breaker state per surface (0 = closed, 1 = half-open, 2 = open)

API Metrics:

bentham_api_requests_total{method, status}:
  - Type: Counter
  - Description: Total API requests by method and HTTP status

bentham_api_request_duration_seconds{method}:
  - Type: Histogram
  - Description: API request duration in seconds

bentham_rate_limited_total:
  - Type: Counter
  - Description: Requests rejected by per-key rate limiting

# Usage

Updating metrics inline:

	import "github.com/benthamhq/bentham/pkg/metrics"

	metrics.StudiesAdmitted.Inc()
	metrics.JobsExecuted.WithLabelValues("chatgpt-web", "succeeded").Inc()

Timing an operation:

	timer := metrics.NewTimer()
	// ... execute job ...
	timer.ObserveDuration(metrics.JobDuration)

Timing with labels:

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.APIRequestDuration, "CreateStudy")

Running the collector:

	collector := metrics.NewCollector(store, recoveryManager)
	collector.Start()
	defer collector.Stop()

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/orchestrator: Study admission counters
  - pkg/executor: Job outcome counters and duration histograms
  - pkg/recovery: Recovery attempt counters, circuit state via HealthSource
  - pkg/gateway: API request instrumentation and /metrics exposition
  - pkg/storage: Gauge sampling source for the collector loop

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()

Gauges Sampled, Counters Inline:
  - Gauges reflect store state and are recomputed by the Collector loop,
    so restarts converge to truth without persistence
  - Counters are incremented at the call site as events happen

Label Discipline:
  - Labels are bounded: status, surface, strategy, method, outcome
  - Tenant, study, and job identifiers never appear as labels;
    they are unbounded and belong in logs

# Monitoring

Prometheus Queries (PromQL):

Study Health:
  - Active studies: bentham_studies_total{status="executing"}
  - Failure rate: rate(bentham_jobs_executed_total{outcome="failed"}[5m])
  - p95 job latency: histogram_quantile(0.95, bentham_job_duration_seconds_bucket)

Surface Health:
  - Open circuits: bentham_circuit_state == 2
  - Fallback pressure: rate(bentham_recovery_attempts_total{strategy="cdp_fallback"}[5m])

API Performance:
  - Request rate: rate(bentham_api_requests_total[1m])
  - Error rate: rate(bentham_api_requests_total{status=~"5.."}[1m])
  - Throttling: rate(bentham_rate_limited_total[5m])
*/
package metrics
