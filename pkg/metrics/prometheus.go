// Package metrics provides Prometheus metrics for the vibecoder daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Loop state gauge values.
const (
	StateAwaiting   = 0
	StateProcessing = 1
)

var (
	defaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100}
	defaultPublishBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}
)

// Manager manages all Prometheus metrics for the daemon.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	publishBuckets   []float64
	registry         prometheus.Registerer

	// Event source
	eventsReceived  prometheus.Counter
	eventsRejected  prometheus.Counter
	eventsDuplicate prometheus.Counter
	receiveTimeouts prometheus.Counter

	// Pipeline
	tasksSynthesized   prometheus.Counter
	publishLatency     prometheus.Histogram
	publishFailures    *prometheus.CounterVec
	pullRequestsOpened prometheus.Counter
	loopIterations     *prometheus.CounterVec
	loopState          prometheus.Gauge

	// Ledger
	ledgerAppends       prometheus.Counter
	ledgerAppendErrors  *prometheus.CounterVec
	ledgerAppendLatency prometheus.Histogram

	// In-memory queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "vibecoder",
		subsystem:        "loop",
		histogramBuckets: defaultLatencyBuckets,
		publishBuckets:   defaultPublishBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
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

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	m.eventsReceived = m.counter("events_received_total", "Coherence events decoded from the event source")
	m.eventsRejected = m.counter("events_rejected_total", "Coherence events rejected at the decoding boundary")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Coherence events skipped because their ID was already seen")
	m.receiveTimeouts = m.counter("receive_timeouts_total", "Receive calls that hit the configured timeout")

	m.tasksSynthesized = m.counter("tasks_synthesized_total", "Tasks produced by the synthesizer")
	m.publishLatency = m.histogram("publish_latency_milliseconds", "End-to-end change publish latency in milliseconds", m.publishBuckets)
	m.publishFailures = m.counterVec("publish_failures_total", "Change publish failures by failing step", "step")
	m.pullRequestsOpened = m.counter("pull_requests_opened_total", "Pull requests opened")
	m.loopIterations = m.counterVec("iterations_total", "Driver loop iterations by outcome", "outcome")
	m.loopState = m.gauge("state", "Driver loop state (0 awaiting event, 1 processing)")

	m.ledgerAppends = m.counter("ledger_appends_total", "Ledger entries appended")
	m.ledgerAppendErrors = m.counterVec("ledger_append_errors_total", "Ledger append failures by kind", "kind")
	m.ledgerAppendLatency = m.histogram("ledger_append_latency_milliseconds", "Ledger append latency in milliseconds", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Events buffered in the in-memory source")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the in-memory source")
	m.queueEnqueues = m.counter("queue_enqueue_total", "Events accepted by the in-memory source")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Events refused by the in-memory source", "reason")

	auto := promauto.With(m.registry)
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEventReceived increments the received events counter.
func RecordEventReceived() {
	globalManager.eventsReceived.Inc()
}

// RecordEventRejected increments the rejected events counter.
func RecordEventRejected() {
	globalManager.eventsRejected.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordReceiveTimeout increments the receive timeout counter.
func RecordReceiveTimeout() {
	globalManager.receiveTimeouts.Inc()
}

// RecordTaskSynthesized increments the synthesized tasks counter.
func RecordTaskSynthesized() {
	globalManager.tasksSynthesized.Inc()
}

// RecordPublishLatency records publish latency in milliseconds.
func RecordPublishLatency(latencyMs float64) {
	globalManager.publishLatency.Observe(latencyMs)
}

// RecordPublishFailure records a publish failure at the given step.
func RecordPublishFailure(step string) {
	globalManager.publishFailures.WithLabelValues(step).Inc()
}

// RecordPullRequestOpened increments the opened pull requests counter.
func RecordPullRequestOpened() {
	globalManager.pullRequestsOpened.Inc()
}

// RecordIteration records one driver loop iteration with its outcome.
func RecordIteration(outcome string) {
	globalManager.loopIterations.WithLabelValues(outcome).Inc()
}

// UpdateLoopState sets the driver loop state gauge.
func UpdateLoopState(state int) {
	globalManager.loopState.Set(float64(state))
}

// RecordLedgerAppend increments the ledger appends counter.
func RecordLedgerAppend() {
	globalManager.ledgerAppends.Inc()
}

// RecordLedgerAppendError records a ledger append failure by kind.
func RecordLedgerAppendError(kind string) {
	globalManager.ledgerAppendErrors.WithLabelValues(kind).Inc()
}

// RecordLedgerAppendLatency records ledger append latency in milliseconds.
func RecordLedgerAppendLatency(latencyMs float64) {
	globalManager.ledgerAppendLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current in-memory queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the in-memory queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueEnqueueError records a refused enqueue by reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
