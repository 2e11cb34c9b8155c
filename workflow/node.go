package workflow

import (
	"context"
	"time"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/tool"
)

// NodeContext is everything a node implementation needs beyond the current
// ExecutionState: the run's cancellation context and the collaborators
// bound by the Preparation Service. Nodes receive this by value and must
// not retain it past their Run call (spec.md §5 — "nodes ... must not
// retain it beyond their invocation").
type NodeContext struct {
	Ctx    context.Context
	RunID  string
	NodeID string
	Step   int

	LLM       model.ChatModel
	Tools     map[string]tool.Tool
	Retriever Retriever

	// MaxToolCalls is the run's WorkflowConfig.MaxToolCalls, bound here so
	// the tool node can enforce the global cap without the registry's
	// per-node Factory signature needing to see the whole WorkflowConfig.
	MaxToolCalls int

	// OnToken is set only in streaming mode; a model node forwards partial
	// output to it as it arrives instead of buffering (spec.md §4.4). Nil
	// in unary mode.
	OnToken func(model.StreamChunk)

	// Publish sends a LifecycleEvent through the run's Event Bus, stamped
	// with RunID automatically. A model node uses this to publish
	// UsageRecorded events so the Aggregator sees every call, including
	// ones issued mid-run by a tool-triggered retry.
	Publish func(LifecycleEvent)
}

// Retriever is the abstract vector-retrieval port a retrieval node queries.
// Any adapter (in-memory, pgvector-backed) may satisfy it; package workflow
// depends only on this interface, never a concrete store.
type Retriever interface {
	Query(ctx context.Context, text string, documentIDs []string) ([]RetrievedChunk, error)
}

// Next describes a node's routing decision, mirroring graph.Next but kept
// independent of the graph package's generic type parameter.
type Next struct {
	To       string
	Terminal bool
}

// Goto routes to a specific node by ID.
func Goto(nodeID string) Next { return Next{To: nodeID} }

// Stop ends the run after this node.
func Stop() Next { return Next{Terminal: true} }

// NodeResult is what a node's Run returns: a partial ExecutionState update
// (merged by ReduceState), a routing decision, and any events to publish.
type NodeResult struct {
	Delta  ExecutionState
	Route  Next
	Events []LifecycleEvent
	Err    error
}

// nodeTimeout bounds a single node's blocking work (spec.md §5 —
// "no node may perform unbounded synchronous work"). The Graph Builder
// passes it to the engine as the default timeout for every node.
const nodeTimeout = 60 * time.Second
