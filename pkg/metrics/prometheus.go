// Package metrics provides Prometheus metrics for the squadwatch tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the tracker.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Poll loop
	pollCycles        *prometheus.CounterVec
	pollCycleDuration prometheus.Histogram

	// Upstream sources
	sourceFetches      *prometheus.CounterVec
	sourceFetchLatency *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	listingPagesRead   prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	// Reconciliation
	reconciledSource *prometheus.CounterVec
	sourceDiffs      prometheus.Counter

	// Snapshot store
	snapshotWrites    prometheus.Counter
	snapshotUnchanged prometheus.Counter
	snapshotRejected  prometheus.Counter
	archives          prometheus.Counter
	rosterMembers     prometheus.Gauge
	totalScore        prometheus.Gauge

	// Event log
	eventsAppended   *prometheus.CounterVec
	eventLogCorrupt  prometheus.Counter
	eventLogSize     prometheus.Gauge
	duplicateEventID prometheus.Counter

	// Session
	sessionPhase  prometheus.Gauge
	sessionWins   prometheus.Gauge
	sessionLosses prometheus.Gauge
	finalizations *prometheus.CounterVec

	// Summary delivery
	noticeQueueSize  prometheus.Gauge
	noticeDeliveries *prometheus.CounterVec
	noticeLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "squadwatch",
		subsystem:        "tracker",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      prometheus.Labels{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.pollCycles = m.counterVec("poll_cycles_total", "Poll cycles by outcome (ok, partial, skipped)", "result")
	m.pollCycleDuration = m.histogram("poll_cycle_duration_milliseconds", "Duration of a full poll cycle")

	m.sourceFetches = m.counterVec("source_fetches_total", "Upstream fetches by source and result", "source", "result")
	m.sourceFetchLatency = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "source_fetch_latency_milliseconds",
		Help: "Upstream fetch latency by source", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, []string{"source"})
	m.breakerState = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "source_breaker_state",
		Help: "Circuit breaker state by source (0 closed, 1 half-open, 2 open)", ConstLabels: m.constLabels,
	}, []string{"source"})
	m.listingPagesRead = m.counter("listing_pages_read_total", "Ranked listing pages read (cache hits included)")
	m.cacheHits = m.counter("cache_hits_total", "TTL cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "TTL cache misses")

	m.reconciledSource = m.counterVec("reconciled_source_total", "Authoritative source chosen per cycle", "source")
	m.sourceDiffs = m.counter("source_diffs_total", "Cycles where both sources succeeded and disagreed")

	m.snapshotWrites = m.counter("snapshot_writes_total", "Snapshot files written")
	m.snapshotUnchanged = m.counter("snapshot_unchanged_total", "Candidate snapshots identical to the persisted one")
	m.snapshotRejected = m.counter("snapshot_rejected_total", "Candidate snapshots rejected as empty")
	m.archives = m.counter("snapshot_archives_total", "Snapshot archive copies created")
	m.rosterMembers = m.gauge("roster_members", "Members in the latest persisted roster")
	m.totalScore = m.gauge("total_score", "Latest persisted total score")

	m.eventsAppended = m.counterVec("events_appended_total", "Events appended to the log by type", "type")
	m.eventLogCorrupt = m.counter("event_log_corruptions_total", "Event log files that failed to parse")
	m.eventLogSize = m.gauge("event_log_size", "Events currently held in the log")
	m.duplicateEventID = m.counter("event_duplicates_total", "Appends ignored because the event id was already logged")

	m.sessionPhase = m.gauge("session_phase", "Session phase (0 none, 1 active, 2 pending finalization)")
	m.sessionWins = m.gauge("session_wins", "Wins in the current session")
	m.sessionLosses = m.gauge("session_losses", "Losses in the current session")
	m.finalizations = m.counterVec("session_finalizations_total", "Finalization outcomes (finalized, superseded, stale)", "result")

	m.noticeQueueSize = m.gauge("notice_queue_size", "Summary notices waiting for delivery")
	m.noticeDeliveries = m.counterVec("notice_deliveries_total", "Summary deliveries by kind and result", "kind", "result")
	m.noticeLatency = m.histogram("notice_delivery_latency_milliseconds", "Summary delivery latency")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

// Poll loop.

func RecordPollCycle(result string)               { globalManager.pollCycles.WithLabelValues(result).Inc() }
func RecordPollCycleDuration(latencyMs float64)   { globalManager.pollCycleDuration.Observe(latencyMs) }
func RecordSourceFetch(source, result string)     { globalManager.sourceFetches.WithLabelValues(source, result).Inc() }
func RecordListingPageRead()                      { globalManager.listingPagesRead.Inc() }
func RecordCacheHit()                             { globalManager.cacheHits.Inc() }
func RecordCacheMiss()                            { globalManager.cacheMisses.Inc() }
func RecordReconciledSource(source string)        { globalManager.reconciledSource.WithLabelValues(source).Inc() }
func RecordSourceDiff()                           { globalManager.sourceDiffs.Inc() }
func UpdateBreakerState(source string, state int) { globalManager.breakerState.WithLabelValues(source).Set(float64(state)) }

// RecordSourceFetchLatency observes one upstream call.
func RecordSourceFetchLatency(source string, latencyMs float64) {
	globalManager.sourceFetchLatency.WithLabelValues(source).Observe(latencyMs)
}

// Snapshot store.

func RecordSnapshotWrite()          { globalManager.snapshotWrites.Inc() }
func RecordSnapshotUnchanged()      { globalManager.snapshotUnchanged.Inc() }
func RecordSnapshotRejected()       { globalManager.snapshotRejected.Inc() }
func RecordArchive()                { globalManager.archives.Inc() }
func UpdateRosterMembers(count int) { globalManager.rosterMembers.Set(float64(count)) }
func UpdateTotalScore(score int64)  { globalManager.totalScore.Set(float64(score)) }

// Event log.

func RecordEventAppended(eventType string) { globalManager.eventsAppended.WithLabelValues(eventType).Inc() }
func RecordEventLogCorrupt()               { globalManager.eventLogCorrupt.Inc() }
func UpdateEventLogSize(count int)         { globalManager.eventLogSize.Set(float64(count)) }
func RecordDuplicateEventID()              { globalManager.duplicateEventID.Inc() }

// Session.

func UpdateSessionPhase(phase int)       { globalManager.sessionPhase.Set(float64(phase)) }
func RecordFinalization(result string)   { globalManager.finalizations.WithLabelValues(result).Inc() }
func UpdateSessionTally(wins, losses int) {
	globalManager.sessionWins.Set(float64(wins))
	globalManager.sessionLosses.Set(float64(losses))
}

// Summary delivery.

func UpdateNoticeQueueSize(size int)            { globalManager.noticeQueueSize.Set(float64(size)) }
func RecordNoticeDelivery(kind, result string)  { globalManager.noticeDeliveries.WithLabelValues(kind, result).Inc() }
func RecordNoticeLatency(latencyMs float64)     { globalManager.noticeLatency.Observe(latencyMs) }

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System.

func UpdateSystemMemoryUsage(bytes uint64)   { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int)   { globalManager.systemGoroutineCount.Set(float64(count)) }
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom registry for serving metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
