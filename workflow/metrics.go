package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection
// for workflow execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "stepflow_"):
//
//  1. inflight_handlers (gauge): handlers currently executing.
//     Use: monitor superstep concurrency.
//
//  2. queue_depth (gauge): messages queued for the next superstep.
//     Use: track fan-out growth and convergence progress.
//
//  3. superstep_latency_ms (histogram): superstep duration in
//     milliseconds. Labels: workflow, status (success/error).
//     Use: P50/P95/P99 latency analysis.
//
//  4. messages_routed_total (counter): messages enqueued through edge
//     routing. Labels: workflow, edge_kind (direct/fan-out/fan-in/
//     switch/addressed).
//
//  5. handler_errors_total (counter): handler failures.
//     Labels: workflow, executor_id.
//
//  6. checkpoints_saved_total (counter): checkpoints persisted.
//     Labels: workflow.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewPrometheusMetrics(registry)
//	runner, err := workflow.NewRunner(wf, workflow.WithMetrics(metrics))
//
//	// Expose via HTTP for Prometheus scraping:
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods may be called concurrently.
type PrometheusMetrics struct {
	inflightHandlers prometheus.Gauge
	queueDepth       prometheus.Gauge

	superstepLatency *prometheus.HistogramVec

	messagesRouted   *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	checkpointsSaved *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all workflow execution
// metrics with the provided registry. A nil registry falls back to
// prometheus.DefaultRegisterer; a dedicated registry is recommended for
// isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightHandlers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stepflow",
		Name:      "inflight_handlers",
		Help:      "Current number of executor handlers running concurrently",
	})

	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "stepflow",
		Name:      "queue_depth",
		Help:      "Number of messages queued for delivery in the next superstep",
	})

	pm.superstepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stepflow",
		Name:      "superstep_latency_ms",
		Help:      "Superstep duration in milliseconds (drain to commit)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
	}, []string{"workflow", "status"}) // status: success, error

	pm.messagesRouted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Name:      "messages_routed_total",
		Help:      "Messages enqueued through edge routing, by edge kind",
	}, []string{"workflow", "edge_kind"}) // edge_kind: direct, fan-out, fan-in, switch, addressed

	pm.handlerErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Name:      "handler_errors_total",
		Help:      "Handler failures that caused a superstep to be discarded",
	}, []string{"workflow", "executor_id"})

	pm.checkpointsSaved = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepflow",
		Name:      "checkpoints_saved_total",
		Help:      "Checkpoints persisted after completed supersteps",
	}, []string{"workflow"})

	return pm
}

// RecordSuperstepLatency records the duration of one superstep.
// Status is "success" or "error".
func (pm *PrometheusMetrics) RecordSuperstepLatency(workflow string, latency time.Duration, status string) {
	if !pm.recording() {
		return
	}
	pm.superstepLatency.WithLabelValues(workflow, status).Observe(float64(latency.Milliseconds()))
}

// AddMessagesRouted adds n routed messages for an edge kind.
func (pm *PrometheusMetrics) AddMessagesRouted(workflow, edgeKind string, n int) {
	if !pm.recording() {
		return
	}
	pm.messagesRouted.WithLabelValues(workflow, edgeKind).Add(float64(n))
}

// IncrementHandlerErrors counts a handler failure.
func (pm *PrometheusMetrics) IncrementHandlerErrors(workflow, executorID string) {
	if !pm.recording() {
		return
	}
	pm.handlerErrors.WithLabelValues(workflow, executorID).Inc()
}

// IncrementCheckpointsSaved counts a persisted checkpoint.
func (pm *PrometheusMetrics) IncrementCheckpointsSaved(workflow string) {
	if !pm.recording() {
		return
	}
	pm.checkpointsSaved.WithLabelValues(workflow).Inc()
}

// UpdateQueueDepth sets the current pending message count.
func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.recording() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// UpdateInflightHandlers sets the current number of executing handlers.
func (pm *PrometheusMetrics) UpdateInflightHandlers(count int) {
	if !pm.recording() {
		return
	}
	pm.inflightHandlers.Set(float64(count))
}

func (pm *PrometheusMetrics) recording() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears the gauge values. Counters and histograms are cumulative
// by design and cannot be reset without re-registering.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.inflightHandlers.Set(0)
	pm.queueDepth.Set(0)
}
