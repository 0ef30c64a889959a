// Package metrics provides Prometheus metrics for the skillsync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Change feed / projections
	feedEventsApplied   *prometheus.CounterVec
	feedEventsIgnored   *prometheus.CounterVec
	feedEventsMalformed *prometheus.CounterVec
	feedSubscribeErrors *prometheus.CounterVec
	feedEventsPublished *prometheus.CounterVec
	feedDuplicates      prometheus.Counter
	openProjections     prometheus.Gauge

	// Skill engine
	skillsUpdated       prometheus.Counter
	skillsCreated       prometheus.Counter
	persistenceFailures prometheus.Counter
	recommendations     prometheus.Histogram

	// Queues and workers
	queueSize               *prometheus.GaugeVec
	queueCapacity           *prometheus.GaugeVec
	queueEnqueueErrors      *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	completionsProcessed    prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillsync",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often polled gauges such as memory and queue
// length should be sampled.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	if !m.enabled {
		// Collectors still exist so the package functions never nil-deref.
		auto = promauto.With(nil)
	}

	m.feedEventsApplied = auto.NewCounterVec(
		m.counterOpts("feed_events_applied_total", "Change events applied to a projection"),
		[]string{"source", "kind"},
	)
	m.feedEventsIgnored = auto.NewCounterVec(
		m.counterOpts("feed_events_ignored_total", "Change events dropped by a projection filter or after close"),
		[]string{"source", "reason"},
	)
	m.feedEventsMalformed = auto.NewCounterVec(
		m.counterOpts("feed_events_malformed_total", "Change events that could not be decoded"),
		[]string{"source"},
	)
	m.feedSubscribeErrors = auto.NewCounterVec(
		m.counterOpts("feed_subscribe_errors_total", "Failed change feed subscriptions"),
		[]string{"source"},
	)
	m.feedEventsPublished = auto.NewCounterVec(
		m.counterOpts("feed_events_published_total", "Change events published to a feed"),
		[]string{"source"},
	)
	m.feedDuplicates = auto.NewCounter(
		m.counterOpts("feed_events_duplicate_total", "Redelivered change events dropped by event id"),
	)
	m.openProjections = auto.NewGauge(
		m.gaugeOpts("open_projections", "Projections currently subscribed to a feed"),
	)

	m.skillsUpdated = auto.NewCounter(
		m.counterOpts("skills_updated_total", "Skill proficiency increases persisted after project completion"),
	)
	m.skillsCreated = auto.NewCounter(
		m.counterOpts("skills_created_total", "Skills created from a completed project"),
	)
	m.persistenceFailures = auto.NewCounter(
		m.counterOpts("skill_persistence_failures_total", "Skill writes that failed during project completion"),
	)
	m.recommendations = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("recommendations_returned"),
		Help:        "Number of ranked projects returned per recommendation request",
		Buckets:     prometheus.LinearBuckets(0, 1, 11),
		ConstLabels: m.customLabels,
	})

	m.queueSize = auto.NewGaugeVec(m.gaugeOpts("queue_size", "Items waiting in a queue"), []string{"queue"})
	m.queueCapacity = auto.NewGaugeVec(m.gaugeOpts("queue_capacity", "Queue capacity"), []string{"queue"})
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Items rejected by a queue"),
		[]string{"queue", "reason"},
	)
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Completion workers running"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time to apply one completed project"),
	)
	m.completionsProcessed = auto.NewCounter(
		m.counterOpts("completions_processed_total", "Completed projects applied to skills"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Allocated heap bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Running goroutines"))
}

// Change feed functions.

// RecordFeedEventApplied counts an event applied to a projection.
func RecordFeedEventApplied(source, kind string) {
	globalManager.feedEventsApplied.WithLabelValues(source, kind).Inc()
}

// RecordFeedEventIgnored counts an event a projection dropped.
func RecordFeedEventIgnored(source, reason string) {
	globalManager.feedEventsIgnored.WithLabelValues(source, reason).Inc()
}

// RecordFeedMalformedEvent counts an event that failed to decode.
func RecordFeedMalformedEvent(source string) {
	globalManager.feedEventsMalformed.WithLabelValues(source).Inc()
}

// RecordFeedSubscribeError counts a subscription that could not be established.
func RecordFeedSubscribeError(source string) {
	globalManager.feedSubscribeErrors.WithLabelValues(source).Inc()
}

// RecordFeedEventPublished counts an event published to a feed.
func RecordFeedEventPublished(source string) {
	globalManager.feedEventsPublished.WithLabelValues(source).Inc()
}

// RecordFeedDuplicate counts a redelivered event dropped by id.
func RecordFeedDuplicate() {
	globalManager.feedDuplicates.Inc()
}

// IncOpenProjections marks a projection as subscribed.
func IncOpenProjections() {
	globalManager.openProjections.Inc()
}

// DecOpenProjections marks a projection as released.
func DecOpenProjections() {
	globalManager.openProjections.Dec()
}

// Skill engine functions.

// RecordSkillUpdated counts a persisted proficiency increase.
func RecordSkillUpdated() {
	globalManager.skillsUpdated.Inc()
}

// RecordSkillCreated counts a skill created from a project.
func RecordSkillCreated() {
	globalManager.skillsCreated.Inc()
}

// RecordPersistenceFailure counts a failed skill write.
func RecordPersistenceFailure() {
	globalManager.persistenceFailures.Inc()
}

// RecordRecommendations observes the size of a ranked recommendation list.
func RecordRecommendations(count int) {
	globalManager.recommendations.Observe(float64(count))
}

// Queue and worker functions.

// UpdateQueueSize sets the number of items waiting in queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueueError counts an item queue rejected.
func RecordQueueEnqueueError(queue, reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
}

// DeleteQueue drops every series labelled with queue.
func DeleteQueue(queue string) {
	globalManager.queueSize.DeleteLabelValues(queue)
	globalManager.queueCapacity.DeleteLabelValues(queue)
	globalManager.queueEnqueueErrors.DeletePartialMatch(prometheus.Labels{"queue": queue})
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long one completion took.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordCompletionProcessed counts an applied completion job.
func RecordCompletionProcessed() {
	globalManager.completionsProcessed.Inc()
}

// HTTP functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System functions.

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry backing the package-level metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
