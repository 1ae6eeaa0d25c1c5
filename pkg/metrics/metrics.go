package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glotta_tasks_created_total",
			Help: "Total number of translation tasks created",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glotta_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal status",
		},
		[]string{"status"},
	)

	TasksReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glotta_tasks_reclaimed_total",
			Help: "Total number of stale tasks failed by the reclaimer",
		},
	)

	ImagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glotta_images_processed_total",
			Help: "Total number of per-image results by terminal status",
		},
		[]string{"status"},
	)

	// Queue metrics
	QueuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glotta_queue_pending",
			Help: "Number of tasks waiting in the translation queue",
		},
	)

	QueueProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glotta_queue_processing",
			Help: "Number of tasks currently claimed by workers",
		},
	)

	// Worker pool metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glotta_workers_total",
			Help: "Local workers by state (active, idle)",
		},
		[]string{"state"},
	)

	ClusterInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glotta_cluster_instances",
			Help: "Number of live instances in the cluster",
		},
	)

	ScalingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glotta_scaling_decisions_total",
			Help: "Scaling decisions applied by direction (up, down, hold)",
		},
		[]string{"direction"},
	)

	// Credential metrics
	CredentialsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glotta_credentials_total",
			Help: "Number of configured API credentials",
		},
	)

	CredentialsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "glotta_credentials_active",
			Help: "Number of credentials currently selectable",
		},
	)

	// Provider metrics
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glotta_provider_requests_total",
			Help: "Provider attempts by outcome (success, quota_or_rate, auth, transient)",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glotta_provider_request_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glotta_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glotta_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glotta_rate_limit_rejections_total",
			Help: "API requests rejected by the per-IP rate limiter",
		},
	)

	// Store metrics
	StoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "glotta_store_errors_total",
			Help: "Total number of coordination store operation failures",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksCreatedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksReclaimedTotal)
	prometheus.MustRegister(ImagesProcessedTotal)
	prometheus.MustRegister(QueuePending)
	prometheus.MustRegister(QueueProcessing)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(ClusterInstances)
	prometheus.MustRegister(ScalingDecisionsTotal)
	prometheus.MustRegister(CredentialsTotal)
	prometheus.MustRegister(CredentialsActive)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RateLimitRejectionsTotal)
	prometheus.MustRegister(StoreErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a convenience wrapper for timing an operation and observing the
// elapsed duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into a histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time into a histogram vector with
// the given label values.
func (t *Timer) ObserveDurationVec(v *prometheus.HistogramVec, labels ...string) {
	v.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
