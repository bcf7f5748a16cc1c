// Package metrics provides Prometheus metrics for the ladder.
package metrics

import (
	"context"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run results recorded by RecordRun.
const (
	ResultApplied   = "applied"
	ResultNoop      = "noop"
	ResultRejected  = "rejected"
	ResultTransient = "transient"
	ResultFailed    = "failed"
)

// Manager manages all Prometheus metrics for the ladder.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Pipeline
	submissions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	ratingChange  prometheus.Histogram
	placements    prometheus.Counter
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastRunUnix   prometheus.Gauge
	outOfOrder    prometheus.Counter
	commitLatency prometheus.Histogram

	// Ladder size
	players       prometheus.Gauge
	series        prometheus.Gauge
	playersByTier *prometheus.GaugeVec

	// Replay detail source
	fetchLatency prometheus.Histogram
	fetchErrors  *prometheus.CounterVec
	fetchQueue   prometheus.Gauge
	prefetched   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global metrics on a fresh registry with opts. It is
// meant for process start, before anything is recorded; the previous
// registry stops receiving updates.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	all := append(slices.Clip(opts), WithPrometheusRegistry(registry))
	globalManager = NewManager(all...)
	customRegistry = registry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "bar",
		subsystem:      "ladder",
		latencyBuckets: prometheus.DefBuckets,
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "submissions_total",
		Help:        "Submissions folded into the ladder by mode and outcome",
		ConstLabels: labels,
	}, []string{"mode", "outcome"})

	m.rejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rejections_total",
		Help:        "Submissions rejected by reason code",
		ConstLabels: labels,
	}, []string{"code"})

	m.ratingChange = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rating_change_points",
		Help:        "Rating points exchanged per accepted series",
		Buckets:     []float64{2, 5, 10, 15, 20, 25, 30},
		ConstLabels: labels,
	})

	m.placements = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "placements_total",
		Help:        "Players placed on the ladder for the first time",
		ConstLabels: labels,
	})

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_total",
		Help:        "Recomputation runs by mode and result",
		ConstLabels: labels,
	}, []string{"mode", "result"})

	m.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "run_duration_seconds",
		Help:        "Wall time of a recomputation run",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	}, []string{"mode"})

	m.lastRunUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_run_timestamp_seconds",
		Help:        "Unix time of the last completed run",
		ConstLabels: labels,
	})

	m.outOfOrder = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "out_of_order_submissions_total",
		Help:        "Incremental submissions older than the newest already folded in",
		ConstLabels: labels,
	})

	m.commitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "commit_latency_seconds",
		Help:        "Time to write and rename every document of a run",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.players = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "players",
		Help:        "Players on the ladder",
		ConstLabels: labels,
	})

	m.series = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "series",
		Help:        "Accepted series in the ladder history",
		ConstLabels: labels,
	})

	m.playersByTier = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "players_by_tier",
		Help:        "Players per tier",
		ConstLabels: labels,
	}, []string{"tier"})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "replay_fetch_latency_seconds",
		Help:        "Latency of replay detail requests",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "replay_fetch_errors_total",
		Help:        "Failed replay detail requests by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.fetchQueue = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "replay_fetch_queue_depth",
		Help:        "Replay references waiting for a prefetch worker",
		ConstLabels: labels,
	})

	m.prefetched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "replay_prefetch_total",
		Help:        "Replay references handled by prefetch workers by result",
		ConstLabels: labels,
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_component_total",
		Help:        "Total number of errors by component",
		ConstLabels: labels,
	}, []string{"component", "error_type"})
}

// RecordSubmission counts one submission outcome for a run mode.
func RecordSubmission(mode, outcome string) {
	globalManager.submissions.WithLabelValues(mode, outcome).Inc()
}

// RecordRejection counts a rejection by reason code.
func RecordRejection(code string) {
	globalManager.rejections.WithLabelValues(code).Inc()
}

// RecordRatingChange observes the magnitude of one series update.
func RecordRatingChange(points float64) {
	globalManager.ratingChange.Observe(points)
}

// RecordPlacement counts a first-time placement.
func RecordPlacement() {
	globalManager.placements.Inc()
}

// RecordRun records the result and wall time of a run.
func RecordRun(mode, result string, seconds float64, finishedUnix float64) {
	globalManager.runs.WithLabelValues(mode, result).Inc()
	globalManager.runDuration.WithLabelValues(mode).Observe(seconds)
	globalManager.lastRunUnix.Set(finishedUnix)
}

// RecordOutOfOrder counts a submission applied out of chronological order.
func RecordOutOfOrder() {
	globalManager.outOfOrder.Inc()
}

// RecordCommitLatency observes document commit time in seconds.
func RecordCommitLatency(seconds float64) {
	globalManager.commitLatency.Observe(seconds)
}

// UpdateLadderSize sets the player and series gauges.
func UpdateLadderSize(players, series int) {
	globalManager.players.Set(float64(players))
	globalManager.series.Set(float64(series))
}

// UpdatePlayersByTier replaces the per-tier player gauges.
func UpdatePlayersByTier(counts map[string]int) {
	globalManager.playersByTier.Reset()
	for tier, n := range counts {
		globalManager.playersByTier.WithLabelValues(tier).Set(float64(n))
	}
}

// RecordFetchLatency observes one replay detail request in seconds.
func RecordFetchLatency(seconds float64) {
	globalManager.fetchLatency.Observe(seconds)
}

// RecordFetchError counts a failed replay detail request.
func RecordFetchError(reason string) {
	globalManager.fetchErrors.WithLabelValues(reason).Inc()
}

// UpdateFetchQueueDepth sets the number of queued prefetch jobs.
func UpdateFetchQueueDepth(n int) {
	globalManager.fetchQueue.Set(float64(n))
}

// RecordPrefetch counts one prefetch job by result: ok, error or dropped.
func RecordPrefetch(result string) {
	globalManager.prefetched.WithLabelValues(result).Inc()
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

// Push sends the current registry to a Pushgateway under job. Batch runs
// exit before a scrape would see them.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(customRegistry).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
