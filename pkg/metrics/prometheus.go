// Package metrics provides Prometheus metrics for the mindbreeze report pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pipeline service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Pipeline Metrics - job lifecycle
	jobsSubmitted     prometheus.Counter
	jobsDuplicate     prometheus.Counter
	jobsFinished      *prometheus.CounterVec
	jobFailures       *prometheus.CounterVec
	stageLatency      *prometheus.HistogramVec
	executionRetries  prometheus.Counter
	degradedResults   prometheus.Counter
	storeCommitErrors prometheus.Counter
	jobsInFlight      prometheus.Gauge

	// Credit Metrics - ledger movements
	creditsReserved prometheus.Counter
	creditsDebited  prometheus.Counter
	creditsReleased prometheus.Counter

	// Quality Gate Metrics
	gateTicks   prometheus.Counter
	gateFires   prometheus.Counter
	activeGates prometheus.Gauge

	// Engine Metrics
	engineUsage       *prometheus.CounterVec
	registeredEngines prometheus.Gauge
	aiRequestLatency  prometheus.Histogram
	aiRequestErrors   prometheus.Counter

	// Repository Metrics
	storedJobs        prometheus.Gauge
	storedSessions    prometheus.Gauge
	storeOpLatency    *prometheus.HistogramVec
	storeSubscribers  prometheus.Gauge
	ledgerOperations  *prometheus.CounterVec
	dedupeTrackedKeys prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mindbreeze",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// collectors still exist so Record* calls stay safe, but nothing is exported
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.jobsSubmitted = m.counter("jobs_submitted_total", "Total number of pipeline jobs accepted")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Total number of duplicate job submissions")
	m.jobsFinished = m.counterVec("jobs_finished_total", "Jobs reaching a terminal stage by outcome", "outcome")
	m.jobFailures = m.counterVec("job_failures_total", "Failed jobs by error kind", "kind")
	m.stageLatency = m.histogramVec("stage_latency_milliseconds", "Time spent in each pipeline stage", "stage")
	m.executionRetries = m.counter("execution_retries_total", "Total number of analysis retries")
	m.degradedResults = m.counter("degraded_results_total", "Results produced by the fallback path")
	m.storeCommitErrors = m.counter("store_commit_errors_total", "Non-fatal failures committing intermediate job state")
	m.jobsInFlight = m.gauge("jobs_in_flight", "Jobs currently being driven by the orchestrator")

	m.creditsReserved = m.counter("credits_reserved_total", "Credits reserved on the ledger")
	m.creditsDebited = m.counter("credits_debited_total", "Credits debited from reservations")
	m.creditsReleased = m.counter("credits_released_total", "Credits released back to accounts")

	m.gateTicks = m.counter("gate_ticks_total", "Quality gate evaluation ticks")
	m.gateFires = m.counter("gate_fires_total", "Quality gates that reached stability")
	m.activeGates = m.gauge("active_gates", "Open quality gates")

	m.engineUsage = m.counterVec("engine_usage_total", "Completed analyses per engine", "engine")
	m.registeredEngines = m.gauge("registered_engines", "Engines in the catalog")
	m.aiRequestLatency = m.histogram("ai_request_latency_milliseconds", "Latency of AI completion requests",
		[]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000})
	m.aiRequestErrors = m.counter("ai_request_errors_total", "Failed AI completion requests")

	m.storedJobs = m.gauge("stored_jobs", "Jobs held by the report store")
	m.storedSessions = m.gauge("stored_sessions", "Sessions held by the report store")
	m.storeOpLatency = m.histogramVec("store_operation_latency_milliseconds", "Report store operation latency", "operation")
	m.storeSubscribers = m.gauge("store_subscribers", "Active job subscriptions")
	m.ledgerOperations = m.counterVec("ledger_operations_total", "Ledger operations by backend, operation and result",
		"backend", "operation", "result")
	m.dedupeTrackedKeys = m.gauge("dedupe_tracked_keys", "Job IDs tracked by the submission deduper")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds",
		m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds",
		m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Pipeline Metrics Functions.

// RecordJobSubmitted increments the accepted jobs counter.
func RecordJobSubmitted() {
	globalManager.jobsSubmitted.Inc()
}

// RecordJobDuplicate increments the duplicate submissions counter.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// RecordJobFinished counts a job reaching a terminal stage.
func RecordJobFinished(outcome string) {
	globalManager.jobsFinished.WithLabelValues(outcome).Inc()
}

// RecordJobFailure counts a failed job by error kind.
func RecordJobFailure(kind string) {
	globalManager.jobFailures.WithLabelValues(kind).Inc()
}

// RecordStageLatency records the time a job spent in a stage.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordExecutionRetry increments the analysis retry counter.
func RecordExecutionRetry() {
	globalManager.executionRetries.Inc()
}

// RecordDegradedResult increments the fallback result counter.
func RecordDegradedResult() {
	globalManager.degradedResults.Inc()
}

// RecordStoreCommitError increments the non-fatal commit failure counter.
func RecordStoreCommitError() {
	globalManager.storeCommitErrors.Inc()
}

// AddJobsInFlight adjusts the in-flight job gauge.
func AddJobsInFlight(delta int) {
	globalManager.jobsInFlight.Add(float64(delta))
}

// Credit Metrics Functions.

// RecordCreditsReserved adds to the reserved credits counter.
func RecordCreditsReserved(amount int) {
	globalManager.creditsReserved.Add(float64(amount))
}

// RecordCreditsDebited adds to the debited credits counter.
func RecordCreditsDebited(amount int) {
	globalManager.creditsDebited.Add(float64(amount))
}

// RecordCreditsReleased adds to the released credits counter.
func RecordCreditsReleased(amount int) {
	globalManager.creditsReleased.Add(float64(amount))
}

// Quality Gate Metrics Functions.

// RecordGateTick increments the gate tick counter.
func RecordGateTick() {
	globalManager.gateTicks.Inc()
}

// RecordGateFired increments the gate fire counter.
func RecordGateFired() {
	globalManager.gateFires.Inc()
}

// UpdateActiveGates sets the number of open gates.
func UpdateActiveGates(count int) {
	globalManager.activeGates.Set(float64(count))
}

// Engine Metrics Functions.

// RecordEngineUsage counts a completed analysis for an engine.
func RecordEngineUsage(engineID string) {
	globalManager.engineUsage.WithLabelValues(engineID).Inc()
}

// UpdateRegisteredEngines sets the catalog size.
func UpdateRegisteredEngines(count int) {
	globalManager.registeredEngines.Set(float64(count))
}

// RecordAIRequestLatency records an AI completion round-trip.
func RecordAIRequestLatency(latencyMs float64) {
	globalManager.aiRequestLatency.Observe(latencyMs)
}

// RecordAIRequestError increments the AI error counter.
func RecordAIRequestError() {
	globalManager.aiRequestErrors.Inc()
}

// Repository Metrics Functions.

// UpdateStoredJobs sets the number of stored jobs.
func UpdateStoredJobs(count int) {
	globalManager.storedJobs.Set(float64(count))
}

// UpdateStoredSessions sets the number of stored sessions.
func UpdateStoredSessions(count int) {
	globalManager.storedSessions.Set(float64(count))
}

// RecordStoreOperationLatency records a store call.
func RecordStoreOperationLatency(operation string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(operation).Observe(latencyMs)
}

// AddStoreSubscribers adjusts the subscription gauge.
func AddStoreSubscribers(delta int) {
	globalManager.storeSubscribers.Add(float64(delta))
}

// RecordLedgerOperation counts a ledger call.
func RecordLedgerOperation(backend, operation, result string) {
	globalManager.ledgerOperations.WithLabelValues(backend, operation, result).Inc()
}

// UpdateDedupeTrackedKeys sets the number of tracked submission keys.
func UpdateDedupeTrackedKeys(count int) {
	globalManager.dedupeTrackedKeys.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval returns how often gauge updaters should sample.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Total sums every series of a counter or gauge (or the sample count of a
// histogram) in the custom registry. name is the short metric name without
// namespace and subsystem.
func Total(name string) (float64, error) {
	full := prometheus.BuildFQName(globalManager.namespace, globalManager.subsystem, name)
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, err
	}
	for _, mf := range families {
		if mf.GetName() != full {
			continue
		}
		return sumFamily(mf), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, full)
}

func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetHistogram() != nil:
			total += float64(m.GetHistogram().GetSampleCount())
		}
	}
	return total
}
