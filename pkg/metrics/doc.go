/*
Package metrics provides Prometheus metrics collection and exposition for glotta.

The metrics package defines and registers all glotta metrics using the
Prometheus client library, providing observability into the task queue, the
worker pool, credential health, provider latency, and API traffic. Metrics
are exposed via the /metrics HTTP endpoint for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐           │
	│  │          Prometheus Registry                │           │
	│  │  - Global DefaultRegistry                   │           │
	│  │  - MustRegister at package init             │           │
	│  │  - Automatic Go runtime metrics             │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Metric Categories                 │           │
	│  │                                              │           │
	│  │  Tasks: created, completed, reclaimed       │           │
	│  │  Images: per-image terminal results         │           │
	│  │  Queue: pending and processing depth        │           │
	│  │  Workers: local state, cluster instances    │           │
	│  │  Scaling: decisions by direction            │           │
	│  │  Credentials: configured and selectable     │           │
	│  │  Provider: attempts by outcome, latency     │           │
	│  │  API: request count, duration, rejections   │           │
	│  │  Store: operation failures                  │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          HTTP Metrics Endpoint              │           │
	│  │  - Path: /metrics                           │           │
	│  │  - Format: Prometheus text exposition       │           │
	│  │  - Handler: promhttp.Handler()              │           │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

# Metrics Catalog

Task metrics:

glotta_tasks_created_total:
  - Type: Counter
  - Description: Translation tasks created by submissions

glotta_tasks_completed_total{status}:
  - Type: Counter
  - Description: Tasks that reached a terminal status
  - Labels: status (completed, failed)

glotta_tasks_reclaimed_total:
  - Type: Counter
  - Description: Stale tasks failed by the reclaimer

glotta_images_processed_total{status}:
  - Type: Counter
  - Description: Per-image results by terminal status
  - Labels: status (completed, failed)

Queue metrics:

glotta_queue_pending:
  - Type: Gauge
  - Description: Tasks waiting in the translation queue

glotta_queue_processing:
  - Type: Gauge
  - Description: Tasks currently claimed by workers

Worker pool metrics:

glotta_workers_total{state}:
  - Type: Gauge
  - Description: Local workers by state
  - Labels: state (active, idle)

glotta_cluster_instances:
  - Type: Gauge
  - Description: Live instances in the cluster

glotta_scaling_decisions_total{direction}:
  - Type: Counter
  - Description: Scaling decisions applied locally
  - Labels: direction (up, down, hold)

Credential metrics:

glotta_credentials_total / glotta_credentials_active:
  - Type: Gauge
  - Description: Configured credentials and those currently selectable

Provider metrics:

glotta_provider_requests_total{outcome}:
  - Type: Counter
  - Description: Provider attempts by outcome
  - Labels: outcome (success, quota_or_rate, auth, transient)

glotta_provider_request_duration_seconds:
  - Type: Histogram
  - Description: Provider call duration
  - Buckets: Default Prometheus buckets

API metrics:

glotta_api_requests_total{method, status}:
  - Type: Counter
  - Description: API requests by method and HTTP status

glotta_api_request_duration_seconds{method}:
  - Type: Histogram
  - Description: API request duration in seconds

glotta_rate_limit_rejections_total:
  - Type: Counter
  - Description: Requests rejected by the per-IP rate limiter

Store metrics:

glotta_store_errors_total:
  - Type: Counter
  - Description: Coordination store operation failures

# Usage

Recording values:

	metrics.TasksCreatedTotal.Inc()
	metrics.TasksCompletedTotal.WithLabelValues("completed").Inc()
	metrics.QueuePending.Set(float64(pending))

Timing an operation:

	timer := metrics.NewTimer()
	text, err := gemini.Translate(ctx, img, lang)
	timer.ObserveDuration(metrics.ProviderRequestDuration)

Timing into a histogram vector:

	timer := metrics.NewTimer()
	next.ServeHTTP(w, r)
	timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)

Exposing metrics:

	mux.Handle("/metrics", metrics.Handler())

# Best Practices

Metric updates are cheap and thread-safe; update at the point where the
event happens (the task manager increments task counters, the rotator
updates credential gauges). Gauges that mirror store state (queue depth,
cluster instances) are refreshed by the pool's heartbeat loop rather than
per request.
*/
package metrics
