package subscribers

import (
	"context"

	"github.com/chatforge/workflow/graph/emit"
)

// FanOutEmitter fans a single stream of events out to every backend
// emitter, the "Multi-emit: Fan out to multiple backends" pattern named in
// graph/emit's own Emitter doc comment. This is how an Executor wires
// PersistenceUpdater, MetricsCollector, and AuditLogger onto the same run
// without any of them knowing the others exist.
type FanOutEmitter struct {
	backends []emit.Emitter
}

// NewFanOutEmitter wraps zero or more backend emitters. A nil backend in
// the list is skipped, so callers can build the slice conditionally
// (e.g. appending AuditLogger only when NATS is configured) without a
// separate compaction pass.
func NewFanOutEmitter(backends ...emit.Emitter) *FanOutEmitter {
	compacted := make([]emit.Emitter, 0, len(backends))
	for _, b := range backends {
		if b != nil {
			compacted = append(compacted, b)
		}
	}
	return &FanOutEmitter{backends: compacted}
}

// Emit forwards event to every backend. A backend is never allowed to
// block or panic the others: each Emit call is independent, matching the
// non-blocking-subscriber contract every backend here already honors on
// its own (PersistenceUpdater queues internally; MetricsCollector and
// AuditLogger's own Emit calls are non-blocking by construction).
func (f *FanOutEmitter) Emit(event emit.Event) {
	for _, b := range f.backends {
		b.Emit(event)
	}
}

// EmitBatch forwards the batch to every backend, returning the first error
// encountered (if any) after every backend has had a chance to process it.
func (f *FanOutEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush flushes every backend, returning the first error encountered (if
// any) after every backend has been given the chance to flush.
func (f *FanOutEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
