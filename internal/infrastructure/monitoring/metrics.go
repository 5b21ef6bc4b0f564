package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the engine and its control plane
// record.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Run metrics (one run is one Scheduler.Run of a graph to completion)
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	RunsActive    prometheus.Gauge
	RunTicksTotal *prometheus.CounterVec

	// Element metrics
	ElementHookDuration *prometheus.HistogramVec
	ElementHookErrors   *prometheus.CounterVec

	// Isolation transport metrics
	TransportSpawnsTotal    *prometheus.CounterVec
	TransportExitsTotal     *prometheus.CounterVec
	TransportEnqueueRetries *prometheus.CounterVec

	// Event bus metrics
	EventsPublishedTotal *prometheus.CounterVec

	// Pipeline registry metrics
	DBQueriesTotal   *prometheus.CounterVec
	DBQueryDuration  *prometheus.HistogramVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers every metric under namespace (defaulting
// to "dataflow").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dataflow"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of control-plane HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Control-plane HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of graph runs started",
			},
			[]string{"pipeline_id", "status"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Graph run wall-clock duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
			},
			[]string{"pipeline_id", "status"},
		),
		RunsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_active",
				Help:      "Number of currently running graphs",
			},
		),
		RunTicksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_ticks_total",
				Help:      "Total number of scheduler ticks executed",
			},
			[]string{"pipeline_id"},
		),

		ElementHookDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "element_hook_duration_seconds",
				Help:      "Duration of a single Pull/Internal/New hook invocation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"element", "hook"},
		),
		ElementHookErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "element_hook_errors_total",
				Help:      "Total number of element hook errors",
			},
			[]string{"element", "hook"},
		),

		TransportSpawnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_spawns_total",
				Help:      "Total number of isolated worker processes spawned",
			},
			[]string{"worker"},
		),
		TransportExitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_exits_total",
				Help:      "Total number of isolated worker process exits",
			},
			[]string{"worker", "reason"},
		),
		TransportEnqueueRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_enqueue_retries_total",
				Help:      "Total number of retried frame enqueues to a hosted worker",
			},
			[]string{"worker"},
		),

		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published on the event bus",
			},
			[]string{"event_type"},
		),

		DBQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of pipeline registry database queries",
			},
			[]string{"operation"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Pipeline registry database query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of pipeline definition cache hits",
			},
			[]string{"operation"},
		),
		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of pipeline definition cache misses",
			},
			[]string{"operation"},
		),
	}
}

// RecordHTTPRequest records one control-plane HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRunStarted records a run transitioning to active.
func (m *Metrics) RecordRunStarted(pipelineID string) {
	m.RunsTotal.WithLabelValues(pipelineID, "started").Inc()
	m.RunsActive.Inc()
}

// RecordRunFinished records a run leaving the active state.
func (m *Metrics) RecordRunFinished(pipelineID, status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(pipelineID, status).Inc()
	m.RunDuration.WithLabelValues(pipelineID, status).Observe(duration.Seconds())
	m.RunsActive.Dec()
}

// RecordTick records one completed scheduler tick.
func (m *Metrics) RecordTick(pipelineID string) {
	m.RunTicksTotal.WithLabelValues(pipelineID).Inc()
}

// RecordElementHook records one hook invocation's duration and, if err is
// non-nil, counts it as a hook error.
func (m *Metrics) RecordElementHook(element, hook string, duration time.Duration, err error) {
	m.ElementHookDuration.WithLabelValues(element, hook).Observe(duration.Seconds())
	if err != nil {
		m.ElementHookErrors.WithLabelValues(element, hook).Inc()
	}
}
