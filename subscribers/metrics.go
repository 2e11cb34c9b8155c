package subscribers

import (
	"context"
	"sync"
	"time"

	"github.com/chatforge/workflow/graph"
	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/workflow"
)

// MetricsCollector drives graph.PrometheusMetrics from the lifecycle event
// stream, the subscriber PrometheusMetrics's own doc comment names as its
// intended driver. It tracks active-run count across ExecutionStarted and
// every terminal execution event, and step latency across each node's
// NodeStarted/NodeCompleted-or-NodeFailed pair.
type MetricsCollector struct {
	metrics *graph.PrometheusMetrics

	mu          sync.Mutex
	active      map[string]struct{}
	nodeStarted map[string]time.Time // keyed by runID+"/"+nodeID
}

// NewMetricsCollector wraps an already-registered graph.PrometheusMetrics.
func NewMetricsCollector(metrics *graph.PrometheusMetrics) *MetricsCollector {
	return &MetricsCollector{
		metrics:     metrics,
		active:      map[string]struct{}{},
		nodeStarted: map[string]time.Time{},
	}
}

// Emit implements emit.Emitter.
func (m *MetricsCollector) Emit(event emit.Event) {
	switch workflow.EventKind(event.Msg) {
	case workflow.EventExecutionStarted:
		m.mu.Lock()
		m.active[event.RunID] = struct{}{}
		m.metrics.SetActiveRuns(len(m.active))
		m.mu.Unlock()

	case workflow.EventExecutionCompleted, workflow.EventExecutionFailed, workflow.EventExecutionCancelled:
		m.mu.Lock()
		delete(m.active, event.RunID)
		m.metrics.SetActiveRuns(len(m.active))
		m.mu.Unlock()

	case workflow.EventNodeStarted:
		m.mu.Lock()
		m.nodeStarted[nodeKey(event)] = m.timestamp(event)
		m.mu.Unlock()

	case workflow.EventNodeCompleted:
		m.recordLatency(event, "success")

	case workflow.EventNodeFailed:
		m.recordLatency(event, "error")

	case workflow.EventToolInvoked:
		// Inflight tool-call gauge is maintained by the tool node's own
		// caller; nothing to record here beyond the generic step latency.
	}
}

func (m *MetricsCollector) recordLatency(event emit.Event, status string) {
	key := nodeKey(event)
	m.mu.Lock()
	started, ok := m.nodeStarted[key]
	if ok {
		delete(m.nodeStarted, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.RecordStepLatency(event.RunID, event.NodeID, m.timestamp(event).Sub(started), status)
}

func (m *MetricsCollector) timestamp(event emit.Event) time.Time {
	if t, ok := event.Meta["timestamp"].(time.Time); ok {
		return t
	}
	return time.Now()
}

func nodeKey(event emit.Event) string {
	return event.RunID + "/" + event.NodeID
}

// EmitBatch implements emit.Emitter by recording each event in order.
func (m *MetricsCollector) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		m.Emit(e)
	}
	return nil
}

// Flush is a no-op: MetricsCollector has no buffered state to drain.
func (m *MetricsCollector) Flush(ctx context.Context) error {
	return nil
}
