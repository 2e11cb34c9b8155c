package workflow

import (
	"time"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/google/uuid"
)

// EventKind names one of the fixed lifecycle event kinds spec.md §4.5
// declares. Every event published by a run is one of these.
type EventKind string

const (
	EventExecutionStarted   EventKind = "ExecutionStarted"
	EventNodeStarted        EventKind = "NodeStarted"
	EventNodeCompleted      EventKind = "NodeCompleted"
	EventNodeFailed         EventKind = "NodeFailed"
	EventTokenChunk         EventKind = "TokenChunk"
	EventUsageRecorded      EventKind = "UsageRecorded"
	EventToolInvoked        EventKind = "ToolInvoked"
	EventExecutionCompleted EventKind = "ExecutionCompleted"
	EventExecutionFailed    EventKind = "ExecutionFailed"
	EventExecutionCancelled EventKind = "ExecutionCancelled"
)

// LifecycleEvent is the typed shape every lifecycle event carries before
// it's flattened onto emit.Event for the bus. ID is unique per event and is
// the Aggregator's deduplication key (spec.md §4.4 — "ignoring duplicates,
// keyed by event id").
type LifecycleEvent struct {
	ID        string
	Kind      EventKind
	RunID     string
	NodeID    string
	Step      int
	Timestamp time.Time
	Payload   map[string]interface{}
}

// NewLifecycleEvent stamps a fresh ID and timestamp is left for the caller
// to fill in (package workflow never calls time.Now() in code paths that
// must replay deterministically — the Executor fills Timestamp once, at
// publish time).
func NewLifecycleEvent(kind EventKind, runID, nodeID string, step int, payload map[string]interface{}) LifecycleEvent {
	return LifecycleEvent{
		ID:      uuid.NewString(),
		Kind:    kind,
		RunID:   runID,
		NodeID:  nodeID,
		Step:    step,
		Payload: payload,
	}
}

// ToEmitEvent flattens a LifecycleEvent onto the graph/emit wire shape so it
// can ride the same Event Bus the graph engine itself uses.
func (e LifecycleEvent) ToEmitEvent() emit.Event {
	meta := make(map[string]interface{}, len(e.Payload)+2)
	for k, v := range e.Payload {
		meta[k] = v
	}
	meta["event_id"] = e.ID
	if _, ok := meta["kind"]; !ok {
		meta["kind"] = string(e.Kind)
	}
	meta["timestamp"] = e.Timestamp

	return emit.Event{
		RunID:  e.RunID,
		Step:   e.Step,
		NodeID: e.NodeID,
		Msg:    string(e.Kind),
		Meta:   meta,
	}
}

// Bus publishes LifecycleEvents over a graph/emit.Emitter, stamping each
// with a timestamp and forwarding it best-effort and synchronously on the
// publishing path (spec.md §4.5 — "subscribers must not block; they
// enqueue their own async work"). The executor has no knowledge of any
// concrete subscriber; it only ever calls Publish.
type Bus struct {
	emitter emit.Emitter
}

// NewBus wraps an emit.Emitter as a typed lifecycle event bus.
func NewBus(emitter emit.Emitter) *Bus {
	return &Bus{emitter: emitter}
}

// Publish stamps the event's timestamp and forwards it to the emitter.
func (b *Bus) Publish(event LifecycleEvent) {
	if b == nil || b.emitter == nil {
		return
	}
	event.Timestamp = nowFunc()
	b.emitter.Emit(event.ToEmitEvent())
}

// nowFunc is indirected so tests can pin the clock; production always uses
// the real wall clock.
var nowFunc = time.Now
