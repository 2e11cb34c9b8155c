package workflow

import (
	"context"
	"time"

	"github.com/chatforge/workflow/graph"
	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/store"
	"github.com/redis/go-redis/v9"
)

// CompiledGraph is a Graph Builder output: a graph.Engine bound to
// ExecutionState plus the metadata the Executor needs to seed a run.
type CompiledGraph struct {
	Engine    *graph.Engine[ExecutionState]
	StartNode string
	Hash      string
	Store     store.Store[ExecutionState]

	// ErrorHandlers maps a node ID to the nearest downstream error-handler
	// node reachable by forward edge traversal, used by the Executor to
	// implement spec.md §7's "routes to the nearest error-handler node if
	// one is reachable from the failing node."
	ErrorHandlers map[string]string
}

// Builder validates a blueprint then compiles it into a CompiledGraph,
// caching by hash(blueprint, boundConfigShape) so repeated runs of the same
// template+config skip recompilation (spec.md §4.2, §9 "Blueprint cache").
type Builder struct {
	registry *Registry
	validator *Validator
	cache    *blueprintCache
}

// NewBuilder constructs a Builder. rdb may be nil, in which case the cache
// is in-memory only (suitable for tests and single-process deployments);
// when non-nil, compiled-graph presence is additionally tracked in Redis so
// multiple processes can short-circuit on a cache hit recorded by any of
// them (the engine itself is never serialized into Redis — only the hash
// membership is — since graph.Engine holds live Node closures).
func NewBuilder(registry *Registry, rdb *redis.Client) *Builder {
	return &Builder{
		registry:  registry,
		validator: NewValidator(registry),
		cache:     newBlueprintCache(rdb),
	}
}

// Build validates b, then compiles it into a CompiledGraph for the given
// config and emitter. A validation failure returns a ValidationError
// carrying the full ValidationReport in Details.
func (bl *Builder) Build(ctx context.Context, b *WorkflowBlueprint, cfg WorkflowConfig, emitter emit.Emitter) (*CompiledGraph, error) {
	report := bl.validator.Validate(b)
	if !report.OK() {
		return nil, &Error{
			Kind:    KindValidation,
			Message: "blueprint failed validation",
			Details: map[string]interface{}{"issues": report.Issues},
		}
	}

	hash := b.Hash(cfg.Shape())
	if bl.cache.Has(ctx, hash) {
		// Cache hit only tells us this exact shape compiled cleanly before;
		// the engine itself is rebuilt every call since it's cheap (a map
		// of closures) and holds per-run-irrelevant state we'd rather not
		// share across concurrent runs.
		compiled, err := bl.compile(b, emitter, hash)
		if err != nil {
			return nil, err
		}
		return compiled, nil
	}

	compiled, err := bl.compile(b, emitter, hash)
	if err != nil {
		return nil, err
	}
	bl.cache.Mark(ctx, hash)
	return compiled, nil
}

func (bl *Builder) compile(b *WorkflowBlueprint, emitter emit.Emitter, hash string) (*CompiledGraph, error) {
	start, ok := b.StartNode()
	if !ok {
		return nil, InternalErrorf("compile: blueprint has no start node after passing validation")
	}

	st := store.NewMemStore[ExecutionState]()
	engine := graph.New[ExecutionState](ReduceState, st, emitter, graph.Options{
		MaxSteps:           len(b.Nodes) * 8,
		DefaultNodeTimeout:  nodeTimeout,
		RunWallClockBudget: 0,
	})

	factories := make(map[string]Node, len(b.Nodes))
	for _, n := range b.Nodes {
		desc, ok := bl.registry.Get(n.Type)
		if !ok {
			return nil, InternalErrorf("compile: node %q has unregistered type %q (validator should have caught this)", n.ID, n.Type)
		}
		impl, err := desc.Factory(n.Config)
		if err != nil {
			return nil, ConfigErrorf("node %q factory: %v", n.ID, err)
		}
		factories[n.ID] = impl

		if err := engine.Add(n.ID, adaptNode(n.ID, impl)); err != nil {
			return nil, InternalErrorf("compile: add node %q: %v", n.ID, err)
		}
	}

	if err := engine.StartAt(start.ID); err != nil {
		return nil, InternalErrorf("compile: set start node: %v", err)
	}

	for _, e := range b.Edges {
		order := 0
		if e.Order != nil {
			order = *e.Order
		}
		predicate := edgePredicate(e)
		if err := engine.ConnectOrdered(e.From, e.To, predicate, order); err != nil {
			return nil, InternalErrorf("compile: connect %s->%s: %v", e.From, e.To, err)
		}
	}

	return &CompiledGraph{
		Engine:        engine,
		StartNode:     start.ID,
		Hash:          hash,
		Store:         st,
		ErrorHandlers: nearestErrorHandlers(b),
	}, nil
}

// nearestErrorHandlers computes, for every node, the nearest downstream
// error-handler node reachable by forward BFS over the blueprint's edges.
func nearestErrorHandlers(b *WorkflowBlueprint) map[string]string {
	isHandler := make(map[string]bool)
	for _, n := range b.Nodes {
		if n.Type == NodeErrorHandler {
			isHandler[n.ID] = true
		}
	}

	result := make(map[string]string)
	for _, n := range b.Nodes {
		visited := map[string]bool{n.ID: true}
		queue := []string{n.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range b.OutgoingEdges(cur) {
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				if isHandler[e.To] {
					result[n.ID] = e.To
					queue = nil
					break
				}
				queue = append(queue, e.To)
			}
		}
	}
	return result
}

// edgePredicate builds the graph.Predicate for one blueprint edge. An edge
// with no declared condition always matches (the common case: linear
// chains and a conditional node's default/else edge carry no condition).
func edgePredicate(e BlueprintEdge) graph.Predicate[ExecutionState] {
	if e.Condition == "" {
		return nil
	}
	return func(state ExecutionState) bool {
		return state.ConditionalResults[e.From] == e.Condition
	}
}

// adaptNode wraps a workflow.Node as a graph.Node[ExecutionState], translating
// between this package's NodeResult/Next and graph's generic equivalents.
func adaptNode(nodeID string, impl Node) graph.Node[ExecutionState] {
	return graph.NodeFunc[ExecutionState](func(ctx context.Context, state ExecutionState) graph.NodeResult[ExecutionState] {
		nodeCtx := NodeContext{
			Ctx:    ctx,
			RunID:  runIDFromContext(ctx),
			NodeID: nodeID,
			Step:   stepFromContext(ctx),
		}
		if bound, ok := ctx.Value(preparedWorkflowKey{}).(*PreparedWorkflow); ok && bound != nil {
			nodeCtx.LLM = bound.LLM
			nodeCtx.Tools = bound.Tools
			nodeCtx.Retriever = bound.Retriever
			nodeCtx.MaxToolCalls = bound.Config.MaxToolCalls
		}
		if onToken, ok := ctx.Value(onTokenKey{}).(func(model.StreamChunk)); ok {
			nodeCtx.OnToken = onToken
		}
		if publish, ok := ctx.Value(publishKey{}).(func(LifecycleEvent)); ok {
			nodeCtx.Publish = publish
		}

		if nodeCtx.Publish != nil {
			nodeCtx.Publish(NewLifecycleEvent(EventNodeStarted, nodeCtx.RunID, nodeID, nodeCtx.Step, nil))
		}

		result, err := impl.Run(nodeCtx, state)
		if err != nil {
			decorated := Decorate(err, nodeCtx.RunID, "run_graph", nodeID, 0)
			publishNodeFailed(nodeCtx, decorated)
			return graph.NodeResult[ExecutionState]{Err: decorated}
		}
		if result.Err != nil {
			result.Err = Decorate(result.Err, nodeCtx.RunID, "run_graph", nodeID, 0)
			publishNodeFailed(nodeCtx, result.Err)
		}

		next := graph.Next{To: result.Route.To, Terminal: result.Route.Terminal}
		events := make([]graph.NodeEvent, 0, len(result.Events))
		for _, e := range result.Events {
			if nodeCtx.Publish != nil {
				nodeCtx.Publish(e)
			}
			events = append(events, graph.NodeEvent{Msg: string(e.Kind), Meta: e.Payload})
		}

		if result.Err == nil && nodeCtx.Publish != nil {
			nodeCtx.Publish(NewLifecycleEvent(EventNodeCompleted, nodeCtx.RunID, nodeID, nodeCtx.Step, nil))
		}

		return graph.NodeResult[ExecutionState]{
			Delta:  result.Delta,
			Route:  next,
			Events: events,
			Err:    result.Err,
		}
	})
}

// publishNodeFailed reports a node failure exactly once, regardless of
// whether the Executor later finds a reachable error-handler to reroute to —
// every NodeStarted this package ever publishes is paired with exactly one
// NodeCompleted or NodeFailed (spec.md §5/§8).
func publishNodeFailed(nodeCtx NodeContext, err *Error) {
	if nodeCtx.Publish == nil {
		return
	}
	nodeCtx.Publish(NewLifecycleEvent(EventNodeFailed, nodeCtx.RunID, nodeCtx.NodeID, nodeCtx.Step, map[string]interface{}{
		"kind":    string(err.Kind),
		"message": err.Message,
	}))
}

type preparedWorkflowKey struct{}
type onTokenKey struct{}
type publishKey struct{}

// runIDFromContext / stepFromContext are thin accessors over the graph
// engine's own context keys so node implementations never need to import
// package graph directly.
func runIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(graph.RunIDKey).(string)
	return v
}

func stepFromContext(ctx context.Context) int {
	v, _ := ctx.Value(graph.StepIDKey).(int)
	return v
}

// blueprintCache tracks which blueprint hashes have compiled successfully
// before. It is a membership cache, not a value cache: the compiled
// graph.Engine itself holds live closures and per-run store/emitter
// bindings, so only the fact "this shape is known-good" is worth sharing.
type blueprintCache struct {
	rdb   *redis.Client
	local map[string]struct{}
}

func newBlueprintCache(rdb *redis.Client) *blueprintCache {
	return &blueprintCache{rdb: rdb, local: make(map[string]struct{})}
}

func (c *blueprintCache) Has(ctx context.Context, hash string) bool {
	if _, ok := c.local[hash]; ok {
		return true
	}
	if c.rdb == nil {
		return false
	}
	exists, err := c.rdb.Exists(ctx, blueprintCacheKey(hash)).Result()
	return err == nil && exists > 0
}

func (c *blueprintCache) Mark(ctx context.Context, hash string) {
	c.local[hash] = struct{}{}
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, blueprintCacheKey(hash), "1", 24*time.Hour).Err()
}

func blueprintCacheKey(hash string) string {
	return "workflow:blueprint-cache:" + hash
}
