package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/graph/model"
	"github.com/google/uuid"
)

// Executor drives a WorkflowInput to completion through the nine-stage
// pipeline spec.md §4.4 declares: Validate -> EnforceLimits -> PublishStart
// -> Prepare -> InitState -> RunGraph -> Aggregate -> Persist -> PublishEnd.
// Every stage may short-circuit with a typed error, which is published as
// ExecutionFailed (ExecutionCancelled for a cancellation) before it surfaces
// to the caller; a failing node additionally publishes NodeFailed from its
// node adapter. The Executor does not retry failed stages or nodes.
type Executor struct {
	Preparer  *Preparer
	Limiter   *Limiter
	Processor *ResultProcessor
	Emitter   emit.Emitter

	// nowFunc and idFunc are indirected for deterministic replay tests
	// (spec.md §8 — "Replaying a run ... yields identical WorkflowResult").
	nowFunc func() time.Time
	idFunc  func() string
}

// NewExecutor builds an Executor with the real clock and a random-UUID run
// ID generator.
func NewExecutor(preparer *Preparer, limiter *Limiter, processor *ResultProcessor, emitter emit.Emitter) *Executor {
	return &Executor{
		Preparer:  preparer,
		Limiter:   limiter,
		Processor: processor,
		Emitter:   emitter,
		nowFunc:   time.Now,
		idFunc:    uuid.NewString,
	}
}

// Execute runs input to completion in unary mode, returning the canonical
// WorkflowResult or a typed error.
func (ex *Executor) Execute(ctx context.Context, input WorkflowInput) (WorkflowResult, error) {
	runID := ex.idFunc()
	bus := NewBus(ex.Emitter)
	started := ex.nowFunc()

	result, err := ex.run(ctx, runID, input, bus, nil)
	if err != nil {
		ex.publishFailure(bus, runID, err)
		return WorkflowResult{}, err
	}

	result.ExecutionTimeMs = ex.nowFunc().Sub(started).Milliseconds()
	bus.Publish(NewLifecycleEvent(EventExecutionCompleted, runID, "", 0, map[string]interface{}{
		"tokensUsed": result.TokensUsed,
		"cost":       result.Cost,
	}))
	return result, nil
}

// ExecuteStream runs input to completion in streaming mode, sending frames
// to the returned channel as they're produced. The channel is closed after
// a terminal `done` or `error` frame.
func (ex *Executor) ExecuteStream(ctx context.Context, input WorkflowInput) <-chan StreamFrame {
	frames := make(chan StreamFrame, 16)

	go func() {
		defer close(frames)

		runID := ex.idFunc()
		bus := NewBus(ex.Emitter)
		started := ex.nowFunc()

		frames <- startFrame(runID)

		onToken := func(chunk model.StreamChunk) {
			if chunk.TextDelta != "" {
				select {
				case frames <- tokenFrame(chunk.TextDelta):
				case <-ctx.Done():
				}
			}
		}

		result, err := ex.run(ctx, runID, input, bus, onToken)
		if err != nil {
			ex.publishFailure(bus, runID, err)
			frames <- errorFrame(err)
			return
		}

		result.ExecutionTimeMs = ex.nowFunc().Sub(started).Milliseconds()
		frames <- usageFrame(result.PromptTokens, result.CompletionTokens)
		bus.Publish(NewLifecycleEvent(EventExecutionCompleted, runID, "", 0, map[string]interface{}{
			"tokensUsed": result.TokensUsed,
			"cost":       result.Cost,
		}))
		frames <- doneFrame(result)
	}()

	return frames
}

// run implements the shared pipeline body for both Execute and
// ExecuteStream; onToken is nil in unary mode.
func (ex *Executor) run(ctx context.Context, runID string, input WorkflowInput, bus *Bus, onToken func(model.StreamChunk)) (WorkflowResult, error) {
	// Stage: Validate (shape-level; structural validation happens again
	// inside Prepare -> Builder.Build against the resolved blueprint).
	if input.UserID == "" {
		return WorkflowResult{}, ValidationErrorf("userId is required")
	}
	if input.Config.MaxToolCalls < 0 {
		return WorkflowResult{}, ValidationErrorf("maxToolCalls must be >= 0")
	}

	// Stage: EnforceLimits
	if ex.Limiter != nil {
		if err := ex.Limiter.CheckDailyTokenBudget(ctx, input.UserID); err != nil {
			return WorkflowResult{}, err
		}
		release, err := ex.Limiter.AcquireSlot(ctx, input.UserID)
		if err != nil {
			return WorkflowResult{}, err
		}
		defer release()
	}

	if input.Source.Kind == SourceInline && input.Source.Inline != nil && ex.Limiter != nil {
		if err := ex.Limiter.CheckBlueprintSize(input.Source.Inline); err != nil {
			return WorkflowResult{}, err
		}
	}

	// Stage: PublishStart
	bus.Publish(NewLifecycleEvent(EventExecutionStarted, runID, "", 0, map[string]interface{}{
		"userId": input.UserID,
	}))

	// Stage: Prepare
	prepared, err := ex.Preparer.Prepare(ctx, input.Source, input.Config, input.UserID, ex.Emitter)
	if err != nil {
		return WorkflowResult{}, Decorate(err, runID, "prepare", "", 0)
	}

	// Stage: InitState
	state := ex.initState(input, prepared)

	// Stage: RunGraph
	runCtx := context.WithValue(ctx, preparedWorkflowKey{}, prepared)
	if onToken != nil {
		runCtx = context.WithValue(runCtx, onTokenKey{}, onToken)
	}

	agg := NewAggregator(runID)
	finalState, err := ex.runGraph(runCtx, runID, prepared, state, bus, agg)
	if err != nil {
		return WorkflowResult{}, Decorate(err, runID, "run_graph", "", 0)
	}

	// Stage: Aggregate (already folded incrementally by runGraph via agg)

	// Stage: Persist (Result Processor persists the assistant message +
	// conversation aggregates; the ExecutionStore row itself is updated by
	// subscribers.PersistenceUpdater off the lifecycle events we publish,
	// not by the Executor directly).
	result, err := ex.Processor.Process(ctx, input.ConversationID, finalState, agg, 0)
	if err != nil {
		return WorkflowResult{}, err
	}

	if ex.Limiter != nil {
		ex.Limiter.RecordTokenUsage(ctx, input.UserID, result.TokensUsed)
	}

	// Stage: PublishEnd happens in the caller (Execute/ExecuteStream), since
	// only it knows final timing and whether this is the unary or streaming
	// terminal frame.
	return result, nil
}

func (ex *Executor) initState(input WorkflowInput, prepared *PreparedWorkflow) ExecutionState {
	var messages []model.Message
	if prepared.Config.SystemMessage != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: prepared.Config.SystemMessage})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: input.Message})

	return ExecutionState{Messages: messages}
}

// runGraph drives the compiled graph.Engine to completion, publishing
// NodeStarted/NodeCompleted/NodeFailed around each visit and folding
// UsageRecorded events into agg as they occur. The engine itself enforces
// single-threaded deterministic traversal (spec.md §5); this method only
// adds the Event Bus wiring the generic graph package doesn't know about.
//
// A node failure isn't necessarily fatal: if the failing node has a
// reachable error-handler node (computed at compile time by
// nearestErrorHandlers), the run is resumed from there with the
// last-persisted state carrying the failure in ErrorState, per spec.md §7.
// An error-handler node that itself fails, or a failure with no reachable
// handler, surfaces to the caller as usual.
func (ex *Executor) runGraph(ctx context.Context, runID string, prepared *PreparedWorkflow, initial ExecutionState, bus *Bus, agg *Aggregator) (ExecutionState, error) {
	publish := func(event LifecycleEvent) {
		event.RunID = runID
		if event.Kind == EventUsageRecorded {
			agg.Record(event)
		}
		bus.Publish(event)
	}
	ctx = context.WithValue(ctx, publishKey{}, publish)

	state, err := prepared.Graph.Engine.Run(ctx, runID, initial)
	if err == nil {
		return state, nil
	}

	var wfErr *Error
	if !errors.As(err, &wfErr) || wfErr.NodeID == "" || prepared.Graph.Store == nil {
		return state, err
	}

	handlerID, ok := prepared.Graph.ErrorHandlers[wfErr.NodeID]
	if !ok {
		return state, err
	}

	lastState, _, loadErr := prepared.Graph.Store.LoadLatest(ctx, runID)
	if loadErr != nil {
		// No recoverable state to hand the handler; surface the original
		// failure rather than starting it from a blank slate.
		return state, err
	}
	lastState.ErrorState = &ErrorState{NodeID: wfErr.NodeID, Kind: wfErr.Kind, Message: wfErr.Message}

	if startErr := prepared.Graph.Engine.StartAt(handlerID); startErr != nil {
		return state, err
	}

	// adaptNode already published NodeFailed for wfErr.NodeID when the first
	// Run call errored; re-running from handlerID publishes its own
	// NodeStarted/NodeCompleted through the same path.
	return prepared.Graph.Engine.Run(ctx, runID, lastState)
}

func (ex *Executor) publishFailure(bus *Bus, runID string, err error) {
	wfErr := Decorate(err, runID, "", "", 0)
	kind := EventExecutionFailed
	if wfErr.Kind == KindCancelled {
		kind = EventExecutionCancelled
	}
	bus.Publish(NewLifecycleEvent(kind, runID, "", 0, map[string]interface{}{
		"kind":    string(wfErr.Kind),
		"message": wfErr.Message,
	}))
}
