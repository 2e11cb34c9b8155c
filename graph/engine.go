package graph

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/graph/store"
)

// contextKey is a private type for context value keys so they don't collide
// with keys from other packages.
type contextKey string

// Context keys propagating execution metadata into a node's context. A node
// reads these with ctx.Value, never by type-asserting the context itself.
const (
	RunIDKey  contextKey = "workflow.run_id"
	StepIDKey contextKey = "workflow.step_id"
	NodeIDKey contextKey = "workflow.node_id"

	// AttemptKey holds the current retry attempt number (0-based) as int.
	AttemptKey contextKey = "workflow.attempt"

	// RNGKey holds a *rand.Rand seeded deterministically from the run ID, so
	// nodes that need randomness (sampling, jitter) replay identically given
	// the same run ID. Nodes must read this instead of the global rand
	// package or replay diverges.
	RNGKey contextKey = "workflow.rng"
)

// initRNG derives a deterministic *rand.Rand from runID by hashing it with
// SHA-256 and using the first 8 bytes as the seed. Same runID always
// produces the same sequence; different runIDs produce independent ones.
func initRNG(runID string) *rand.Rand {
	hasher := sha256.New()
	hasher.Write([]byte(runID))
	hashBytes := hasher.Sum(nil)
	seed := int64(binary.BigEndian.Uint64(hashBytes[:8])) // #nosec G115 -- deterministic seeding, not security
	source := rand.NewSource(seed) // #nosec G404 -- deterministic RNG for replay
	return rand.New(source)        // #nosec G404 -- deterministic RNG for replay
}

// Engine orchestrates stateful workflow execution.
//
// It walks a graph of Node[S] values connected by Edge[S] predicates,
// merging each node's delta into the accumulated state via Reducer,
// persisting state after every step, and emitting observability events.
//
// Intra-run parallelism is deliberately out of scope for Engine: a node that
// needs to fan out internally (e.g. a tool node calling several tools at
// once) does so inside its own Run method and returns a single merged
// delta. Engine itself visits one node at a time, which keeps replay,
// checkpointing, and state merging straightforward.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter

	metrics     *PrometheusMetrics
	costTracker *CostTracker

	opts Options
}

// New constructs an Engine. options may mix a plain Options value with any
// number of functional Option values, applied in the order given — see
// resolveOptions.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, options ...interface{}) *Engine[S] {
	opts, err := resolveOptions(options...)
	if err != nil {
		opts = Options{}
	}

	return &Engine[S]{
		reducer:     reducer,
		nodes:       make(map[string]Node[S]),
		edges:       make([]Edge[S], 0),
		store:       st,
		emitter:     emitter,
		metrics:     opts.Metrics,
		costTracker: opts.CostTracker,
		opts:        opts,
	}
}

// Add registers a node in the workflow graph. Node IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty", Code: "INVALID_NODE_ID"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil", Code: "INVALID_NODE"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry point for workflow execution. The node must
// already be registered via Add.
func (e *Engine[S]) StartAt(nodeID string) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty", Code: "INVALID_NODE_ID"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge between two nodes. Node existence is not validated
// here (lazy) so graphs can be built in any order; the workflow package's
// validator checks full connectivity before a blueprint is ever run.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	return e.ConnectOrdered(from, to, predicate, 0)
}

// ConnectOrdered adds an edge with an explicit tie-break order. When several
// outgoing conditional edges from the same node match the current state,
// the one with the smallest order wins.
func (e *Engine[S]) ConnectOrdered(from, to string, predicate Predicate[S], order int) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty", Code: "INVALID_EDGE"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty", Code: "INVALID_EDGE"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate, Order: order})
	return nil
}

// Run executes the workflow from the start node to completion or error.
//
// Each step: look up the current node, run it (with its NodePolicy timeout
// and retry applied), merge its delta via the reducer, persist the step,
// emit events, then pick the next node from the node's explicit Route or,
// failing that, from the first matching outgoing edge (lowest Order wins
// among matches). Run returns when a node routes Terminal, MaxSteps is
// exceeded, the context is cancelled, or a node fails without a retry left.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if e == nil {
		return zero, &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if e.reducer == nil {
		return zero, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return zero, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if e.startNode == "" {
		return zero, &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}

	e.mu.RLock()
	_, exists := e.nodes[e.startNode]
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "start node does not exist: " + e.startNode, Code: "NODE_NOT_FOUND"}
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	rng := initRNG(runID)
	ctx = context.WithValue(ctx, RNGKey, rng)
	ctx = context.WithValue(ctx, RunIDKey, runID)

	if e.metrics != nil {
		e.metrics.SetActiveRuns(1)
		defer e.metrics.SetActiveRuns(0)
	}

	currentState := initial
	currentNode := e.startNode
	step := 0

	for {
		step++
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, &EngineError{Message: "workflow exceeded MaxSteps limit", Code: "MAX_STEPS_EXCEEDED", Cause: ErrMaxStepsExceeded}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		e.mu.RLock()
		nodeImpl, exists := e.nodes[currentNode]
		e.mu.RUnlock()
		if !exists {
			return zero, &EngineError{Message: "node not found during execution: " + currentNode, Code: "NODE_NOT_FOUND", Cause: ErrNodeNotFound}
		}

		e.emitNodeStart(runID, currentNode, step-1)

		nodeCtx := context.WithValue(ctx, NodeIDKey, currentNode)
		nodeCtx = context.WithValue(nodeCtx, StepIDKey, step-1)

		policy := e.policyFor(currentNode)
		result, err := e.runNodeWithRetry(nodeCtx, nodeImpl, currentNode, currentState, step-1, policy)
		if err != nil {
			e.emitError(runID, currentNode, step-1, err)
			return zero, err
		}

		currentState = e.reducer(currentState, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, currentNode, currentState); err != nil {
			return zero, &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR", Cause: err}
		}

		e.emitNodeEnd(runID, currentNode, step-1, result.Delta)
		e.emitNodeEvents(runID, currentNode, step-1, result.Events)

		if result.Route.Terminal {
			e.emitRoutingDecision(runID, currentNode, step-1, map[string]interface{}{"terminal": true})
			return currentState, nil
		}

		if result.Route.To != "" {
			e.emitRoutingDecision(runID, currentNode, step-1, map[string]interface{}{"next_node": result.Route.To})
			currentNode = result.Route.To
			continue
		}

		nextNode := e.evaluateEdges(currentNode, currentState)
		if nextNode == "" {
			return zero, &EngineError{Message: "no valid route from node: " + currentNode, Code: "NO_ROUTE", Cause: ErrNoRoute}
		}

		e.emitRoutingDecision(runID, currentNode, step-1, map[string]interface{}{"next_node": nextNode, "via_edge": true})
		currentNode = nextNode
	}
}

// policyFor returns the NodePolicy configured for nodeID, or the zero value
// if none was set via WithNodePolicy.
func (e *Engine[S]) policyFor(nodeID string) NodePolicy {
	if e.opts.Policies == nil {
		return NodePolicy{}
	}
	return e.opts.Policies[nodeID]
}

// runNodeWithRetry executes a node, applying its timeout and retrying on
// failure per its RetryPolicy (exponential backoff with jitter, seeded from
// the run's RNG so retries replay deterministically).
func (e *Engine[S]) runNodeWithRetry(ctx context.Context, node Node[S], nodeID string, state S, step int, policy NodePolicy) (NodeResult[S], error) {
	var lastErr error
	maxAttempts := 1
	var retry *RetryPolicy
	if policy.RetryPolicy != nil {
		retry = policy.RetryPolicy
		maxAttempts = retry.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
	}

	rng, _ := ctx.Value(RNGKey).(*rand.Rand)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx := context.WithValue(ctx, AttemptKey, attempt)

		result, err := executeNodeWithTimeout[S](attemptCtx, node, nodeID, state, &policy, e.opts.DefaultNodeTimeout)
		if err == nil && result.Err == nil {
			if e.metrics != nil && attempt > 0 {
				e.metrics.IncrementRetries(fmtRunID(ctx), nodeID, "recovered")
			}
			return result, nil
		}

		if err == nil {
			err = result.Err
		}
		lastErr = err

		retryable := retry != nil && retry.Retryable != nil && retry.Retryable(err)
		if !retryable || attempt == maxAttempts-1 {
			break
		}

		if e.metrics != nil {
			e.metrics.IncrementRetries(fmtRunID(ctx), nodeID, "transient_error")
		}

		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, rng)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return NodeResult[S]{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return NodeResult[S]{}, lastErr
}

func fmtRunID(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey).(string); ok {
		return v
	}
	return ""
}

// evaluateEdges returns the To of the first matching outgoing edge from
// fromNode, trying edges in ascending Order and, within equal Order,
// declaration order. Returns "" if none match.
func (e *Engine[S]) evaluateEdges(fromNode string, state S) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	found := false
	bestTo := ""
	bestOrder := 0
	for _, edge := range e.edges {
		if edge.From != fromNode {
			continue
		}
		matches := edge.When == nil || edge.When(state)
		if !matches {
			continue
		}
		if !found || edge.Order < bestOrder {
			found = true
			bestOrder = edge.Order
			bestTo = edge.To
		}
	}
	return bestTo
}

func (e *Engine[S]) emitNodeStart(runID, nodeID string, step int) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_start"})
}

func (e *Engine[S]) emitNodeEnd(runID, nodeID string, step int, delta S) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: nodeID, Msg: "node_end",
		Meta: map[string]interface{}{"delta": delta},
	})
}

func (e *Engine[S]) emitNodeEvents(runID, nodeID string, step int, events []NodeEvent) {
	if e.emitter == nil {
		return
	}
	for _, ev := range events {
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: ev.Msg, Meta: ev.Meta})
	}
}

func (e *Engine[S]) emitError(runID, nodeID string, step int, err error) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: nodeID, Msg: "error",
		Meta: map[string]interface{}{"error": err.Error()},
	})
}

func (e *Engine[S]) emitRoutingDecision(runID, nodeID string, step int, meta map[string]interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "routing_decision", Meta: meta})
}

// SaveCheckpoint snapshots the most recently persisted state for runID under
// a user-chosen label, for later resumption via ResumeFromCheckpoint.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID string, label string) error {
	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return &EngineError{Message: "failed to load latest state: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	if err := e.store.SaveCheckpoint(ctx, label, state, step); err != nil {
		return &EngineError{Message: "failed to save checkpoint: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	return nil
}

// ResumeFromCheckpoint loads a labeled checkpoint and continues execution
// under a new run ID, starting at startNode with the checkpointed state.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, label string, newRunID string, startNode string) (S, error) {
	var zero S
	state, _, err := e.store.LoadCheckpoint(ctx, label)
	if err != nil {
		return zero, &EngineError{Message: "failed to load checkpoint: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}

	e.mu.Lock()
	e.startNode = startNode
	e.mu.Unlock()

	return e.Run(ctx, newRunID, state)
}
