// Package subscribers implements the Event Bus subscribers: independent
// consumers of the same lifecycle event stream the Executor publishes,
// none of which the Executor has any direct knowledge of (spec.md §4.5).
// Every subscriber here is itself a graph/emit.Emitter, composed onto a run
// through FanOutEmitter — the same "Multi-emit: Fan out to multiple
// backends" pattern the emit package's own doc comment names.
package subscribers

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/workflow"
)

// PersistenceUpdater is the only writer of WorkflowExecution transitions:
// it creates the row on ExecutionStarted and updates it on every terminal
// event, driven entirely off the lifecycle event stream rather than direct
// calls from the Executor.
//
// Emit enqueues onto an internal channel and returns immediately; a single
// background goroutine drains it, so a slow or unavailable ExecutionStore
// never blocks the publishing path (the non-blocking-subscriber contract
// workflow.Bus's own doc comment requires).
type PersistenceUpdater struct {
	store  workflow.ExecutionStore
	logger *slog.Logger

	events chan emit.Event
	done   chan struct{}
}

// NewPersistenceUpdater starts the background drain goroutine. Call Close
// to stop it and wait for the queue to drain.
func NewPersistenceUpdater(store workflow.ExecutionStore, logger *slog.Logger) *PersistenceUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PersistenceUpdater{
		store:  store,
		logger: logger,
		events: make(chan emit.Event, 256),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *PersistenceUpdater) loop() {
	defer close(p.done)
	ctx := context.Background()
	for event := range p.events {
		if err := p.apply(ctx, event); err != nil {
			p.logger.Error("persistence subscriber: apply event failed",
				"run_id", event.RunID, "msg", event.Msg, "error", err)
		}
	}
}

// Emit implements emit.Emitter. A full queue drops the event rather than
// blocking the caller — the Control API's GetExecution still reflects the
// last successfully applied transition.
func (p *PersistenceUpdater) Emit(event emit.Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("persistence subscriber: queue full, dropping event", "run_id", event.RunID, "msg", event.Msg)
	}
}

// EmitBatch implements emit.Emitter by enqueueing each event in order.
func (p *PersistenceUpdater) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		p.Emit(e)
	}
	return nil
}

// Flush waits until the queue observed at call time has fully drained.
func (p *PersistenceUpdater) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	go func() {
		for len(p.events) > 0 {
			time.Sleep(time.Millisecond)
		}
		close(marker)
	}()
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new events and waits for the drain goroutine to exit.
func (p *PersistenceUpdater) Close() {
	close(p.events)
	<-p.done
}

func (p *PersistenceUpdater) apply(ctx context.Context, event emit.Event) error {
	switch workflow.EventKind(event.Msg) {
	case workflow.EventExecutionStarted:
		userID, _ := event.Meta["userId"].(string)
		return p.store.Create(ctx, workflow.WorkflowExecution{
			ID:        event.RunID,
			UserID:    userID,
			Status:    workflow.StatusRunning,
			StartedAt: eventTimestamp(event),
		})

	case workflow.EventExecutionCompleted:
		exec, err := p.store.Get(ctx, event.RunID)
		if err != nil {
			return err
		}
		finished := eventTimestamp(event)
		exec.Status = workflow.StatusCompleted
		exec.FinishedAt = &finished
		exec.Tokens = intMeta(event.Meta, "tokensUsed")
		exec.Cost = floatMeta(event.Meta, "cost")
		return p.store.Update(ctx, exec)

	case workflow.EventExecutionFailed, workflow.EventExecutionCancelled:
		exec, err := p.store.Get(ctx, event.RunID)
		if err != nil {
			return err
		}
		finished := eventTimestamp(event)
		exec.Status = workflow.StatusFailed
		if workflow.EventKind(event.Msg) == workflow.EventExecutionCancelled {
			exec.Status = workflow.StatusCancelled
		}
		exec.FinishedAt = &finished
		kind, _ := event.Meta["kind"].(string)
		message, _ := event.Meta["message"].(string)
		exec.Error = &workflow.ExecutionError{Kind: workflow.Kind(kind), Message: message}
		return p.store.Update(ctx, exec)
	}
	return nil
}

func eventTimestamp(event emit.Event) time.Time {
	if t, ok := event.Meta["timestamp"].(time.Time); ok {
		return t
	}
	return time.Now()
}

func intMeta(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatMeta(meta map[string]interface{}, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
