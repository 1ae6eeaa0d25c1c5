/*
Package api exposes the translation service over HTTP.

The server is a chi router with two middleware layers in front of every
handler: request observation (access log + Prometheus counters) and
per-IP rate limiting. Handlers stay thin; they validate input, call
into the task manager, observer, pool, or keyring, and render JSON.

# Architecture

	                 ┌──────────────────────────────────────────┐
	 HTTP request ──►│ observe (log + metrics)                  │
	                 │   └─► ipLimiter (burst bucket + store)   │
	                 │         └─► handler                      │
	                 └──────────────────────────────────────────┘

	 POST /api/v1/translate                  submit images, get a task id
	 GET  /api/v1/translate/result/{id}      long-poll for results
	 GET  /api/v1/translate/languages        supported target languages
	 GET  /api/v1/stats                      queue / workers / cluster / keys
	 GET  /api/v1/health                     component health verdict
	 GET  /health                            alias for load balancers
	 GET  /metrics                           Prometheus scrape endpoint

# Request Flow

Submission reads the multipart form, enforces the per-file and total
size caps, sniffs each payload's content type against the image
allowlist, and creates a task. The response carries the task id, its
pending status, and a wait estimate derived from current queue depth.

The result endpoint delegates to the observer, which polls the task
until any image reaches a terminal state or the timeout passes, so
clients see partial results as soon as the first image lands rather
than waiting for the whole batch.

# Rate Limiting

Two layers guard each client IP. An in-process token bucket smooths
bursts (it refills at the sustained limit spread over a minute), and a
shared per-minute counter in the store enforces the sustained limit
across all instances. Store outages fail open: a client is never
rejected because the counter was unreachable. Health and metrics paths
are exempt. Rejected requests get 429 with a Retry-After header.

# Errors

Failures are rendered as JSON objects with a single "detail" field,
mirroring what clients of the service already parse: 400 for
validation problems, 413 for oversized uploads, 404 for unknown tasks,
429 for throttled clients, and 500 when the store or task manager
fails. The health endpoint always answers 200 and reports its verdict
in the body so load balancers keep routing while operators see the
degradation.
*/
package api
