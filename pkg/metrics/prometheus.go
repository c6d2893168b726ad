// Package metrics provides Prometheus metrics for the storyline service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Default latency buckets in milliseconds. External calls to language
// models routinely take seconds, so the range is wider than DefBuckets.
var defaultLatencyBucketsMs = []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64 // nanoseconds
	constLabels      map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline
	timelinesGenerated  *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	articlesFetched     prometheus.Counter
	extractionFailures  *prometheus.CounterVec
	eventsExtracted     prometheus.Counter
	clustersCreated     *prometheus.CounterVec
	summaryParseMissing *prometheus.CounterVec

	// External collaborators
	externalCallDuration *prometheus.HistogramVec
	externalCallErrors   *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Jobs
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueUtilization        prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	jobsByStatus            *prometheus.CounterVec
	jobsStored              prometheus.Gauge
	duplicateRequests       prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "storyline",
		subsystem:        "timeline",
		histogramBuckets: defaultLatencyBucketsMs,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// Enabled reports whether the Record and Update helpers write to this manager.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is how often polled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

// Configure applies the runtime options (WithEnabled, WithRefreshInterval)
// to the package-level manager. Options that shape collectors have no
// effect here because the collectors already exist.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the package-level helpers record anything.
func Enabled() bool { return globalManager.Enabled() }

// RefreshInterval returns the package-level refresh interval.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// active returns the package-level manager, or nil while recording is off.
func active() *Manager {
	if !globalManager.Enabled() {
		return nil
	}
	return globalManager
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.constLabels)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}
	histogramVec := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			Buckets: m.histogramBuckets, ConstLabels: constLabels,
		}, labels)
	}
	histogram := func(name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
			Buckets: m.histogramBuckets, ConstLabels: constLabels,
		})
	}

	m.timelinesGenerated = counterVec("timelines_generated_total", "Timeline runs by outcome", "outcome")
	m.stageDuration = histogramVec("pipeline_stage_duration_ms", "Duration of each pipeline stage in milliseconds", "stage")
	m.articlesFetched = counter("articles_fetched_total", "Articles returned by the article source")
	m.extractionFailures = counterVec("extraction_failures_total", "Articles that contributed zero events, by reason", "reason")
	m.eventsExtracted = counter("events_extracted_total", "Dated events extracted from articles")
	m.clustersCreated = counterVec("clusters_created_total", "Clusters produced, by kind", "kind")
	m.summaryParseMissing = counterVec("summary_labels_missing_total", "Summaries missing a labelled line", "label")

	m.externalCallDuration = histogramVec("external_call_duration_ms", "Latency of external calls in milliseconds", "service", "operation")
	m.externalCallErrors = counterVec("external_call_errors_total", "Failed external calls", "service", "operation")
	m.cacheHits = counterVec("cache_hits_total", "Cache hits by kind", "kind")
	m.cacheMisses = counterVec("cache_misses_total", "Cache misses by kind", "kind")

	m.httpRequests = counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_ms", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = gauge("queue_size", "Jobs waiting in the queue")
	m.queueCapacity = gauge("queue_capacity", "Maximum queued jobs")
	m.queueUtilization = gauge("queue_utilization", "Queue size divided by capacity")
	m.queueEnqueued = counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueErrors = counter("queue_enqueue_errors_total", "Rejected enqueues")
	m.workerCount = gauge("worker_count", "Job workers")
	m.workerProcessingLatency = histogram("worker_processing_latency_ms", "Job processing latency in milliseconds")
	m.jobsByStatus = counterVec("jobs_total", "Job state transitions", "status")
	m.jobsStored = gauge("jobs_stored", "Jobs held in the job store")
	m.duplicateRequests = counter("duplicate_requests_total", "Job submissions with an already seen id")

	m.errorRateByComponent = counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")
	m.errorLatency = histogramVec("error_latency_ms", "Latency of failed operations in milliseconds", "component", "error_type")

	m.systemMemoryUsage = gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = histogram("system_gc_pause_ms", "Average GC pause in milliseconds")
}

// Pipeline

// RecordTimelineGenerated counts a finished run; outcome is "success", "empty" or "error".
func RecordTimelineGenerated(outcome string) {
	if m := active(); m != nil {
		m.timelinesGenerated.WithLabelValues(outcome).Inc()
	}
}

// RecordStageDuration observes the duration of one pipeline stage.
func RecordStageDuration(stage string, d time.Duration) {
	if m := active(); m != nil {
		m.stageDuration.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
	}
}

func RecordArticlesFetched(n int) {
	if m := active(); m != nil {
		m.articlesFetched.Add(float64(n))
	}
}

func RecordExtractionFailure(reason string) {
	if m := active(); m != nil {
		m.extractionFailures.WithLabelValues(reason).Inc()
	}
}

func RecordEventsExtracted(n int) {
	if m := active(); m != nil {
		m.eventsExtracted.Add(float64(n))
	}
}

// RecordClusters counts clusters of a kind: temporal, semantic, noise or single.
func RecordClusters(kind string, n int) {
	if m := active(); m != nil {
		m.clustersCreated.WithLabelValues(kind).Add(float64(n))
	}
}

func RecordSummaryLabelMissing(label string) {
	if m := active(); m != nil {
		m.summaryParseMissing.WithLabelValues(label).Inc()
	}
}

// External collaborators

// RecordExternalCall observes an external call and counts it as an error when err is non-nil.
func RecordExternalCall(service, operation string, d time.Duration, err error) {
	if m := active(); m != nil {
		m.externalCallDuration.WithLabelValues(service, operation).Observe(float64(d.Milliseconds()))
		if err != nil {
			m.externalCallErrors.WithLabelValues(service, operation).Inc()
		}
	}
}

func RecordCacheHit(kind string) {
	if m := active(); m != nil {
		m.cacheHits.WithLabelValues(kind).Inc()
	}
}

func RecordCacheMiss(kind string) {
	if m := active(); m != nil {
		m.cacheMisses.WithLabelValues(kind).Inc()
	}
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// Jobs

func UpdateQueueSize(size int) {
	if m := active(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if m := active(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

func UpdateQueueUtilization(utilization float64) {
	if m := active(); m != nil {
		m.queueUtilization.Set(utilization)
	}
}

func RecordQueueEnqueue() {
	if m := active(); m != nil {
		m.queueEnqueued.Inc()
	}
}

func RecordQueueDequeue() {
	if m := active(); m != nil {
		m.queueDequeued.Inc()
	}
}

func RecordQueueEnqueueError() {
	if m := active(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

func UpdateWorkerCount(count int) {
	if m := active(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordJobStatus counts a job entering status.
func RecordJobStatus(status string) {
	if m := active(); m != nil {
		m.jobsByStatus.WithLabelValues(status).Inc()
	}
}

func UpdateJobsStored(count int) {
	if m := active(); m != nil {
		m.jobsStored.Set(float64(count))
	}
}

func RecordDuplicateRequest() {
	if m := active(); m != nil {
		m.duplicateRequests.Inc()
	}
}

// Errors

func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

func RecordErrorByType(errorType, severity string) {
	if m := active(); m != nil {
		m.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := active(); m != nil {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if m := active(); m != nil {
		m.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// System

func UpdateSystemMemoryUsage(bytes uint64) {
	if m := active(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if m := active(); m != nil {
		m.systemGoroutineCount.Set(float64(count))
	}
}

func RecordSystemGCPauseTime(pauseMs float64) {
	if m := active(); m != nil {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry all package-level metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
