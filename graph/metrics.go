// Package graph provides the generic graph execution engine.
package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics for workflow
// execution monitoring, namespaced "workflow_":
//
//  1. active_runs (gauge): runs currently executing. Labels: none.
//  2. inflight_tool_calls (gauge): tool calls currently executing
//     concurrently within a single model step. Labels: run_id.
//  3. step_latency_ms (histogram): node execution duration. Labels:
//     run_id, node_id, status (success/error/timeout).
//  4. retries_total (counter): cumulative retry attempts. Labels:
//     run_id, node_id, reason.
//
// subscribers.MetricsCollector (package subscribers) is the Event Bus
// subscriber that drives these from lifecycle events; package graph itself
// only exposes the recording methods so it stays usable without the
// workflow layer.
type PrometheusMetrics struct {
	activeRuns        prometheus.Gauge
	inflightToolCalls *prometheus.GaugeVec
	stepLatency       *prometheus.HistogramVec
	retries           *prometheus.CounterVec

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers workflow execution metrics with
// the given registry. Pass prometheus.DefaultRegisterer for the global
// registry, or a fresh *prometheus.Registry for test isolation.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.activeRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "workflow",
		Name:      "active_runs",
		Help:      "Number of workflow runs currently executing",
	})

	pm.inflightToolCalls = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workflow",
		Name:      "inflight_tool_calls",
		Help:      "Number of tool calls currently executing concurrently within a run",
	}, []string{"run_id"})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workflow",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "retries_total",
		Help:      "Cumulative count of node retry attempts",
	}, []string{"run_id", "node_id", "reason"})

	return pm
}

// RecordStepLatency records the execution duration of a node visit.
func (pm *PrometheusMetrics) RecordStepLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.enabled {
		return
	}
	pm.stepLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries increments the retry counter for a node and reason
// ("provider_error", "timeout", ...).
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.enabled {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// SetActiveRuns sets the gauge of currently executing runs.
func (pm *PrometheusMetrics) SetActiveRuns(count int) {
	if !pm.enabled {
		return
	}
	pm.activeRuns.Set(float64(count))
}

// SetInflightToolCalls sets the gauge of tool calls currently executing
// concurrently for a run.
func (pm *PrometheusMetrics) SetInflightToolCalls(runID string, count int) {
	if !pm.enabled {
		return
	}
	pm.inflightToolCalls.WithLabelValues(runID).Set(float64(count))
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
