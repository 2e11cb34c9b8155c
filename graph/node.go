package graph

import "context"

// Node represents a single typed step in a workflow graph. It receives the
// current state, performs its computation (calling an LLM, invoking a tool,
// querying a retriever, or pure bookkeeping), and returns a NodeResult.
//
// Nodes are constructed once at compile time by the node registry's factory
// and are otherwise stateless across runs: all per-run data lives in the
// state S threaded through Run, never on the Node value itself.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state. It
	// returns a NodeResult containing the state delta, the routing
	// decision, any node-level events, and an error if the node failed.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a single node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node. It is
	// merged into the accumulated state via the engine's Reducer.
	Delta S

	// Route specifies the next step in workflow execution. Use Stop() for
	// terminal nodes or Goto(id) for explicit routing; a zero value falls
	// back to edge-based routing.
	Route Next

	// Events carries node-level observability events (e.g. one per tool
	// call) emitted during this invocation, in production order. The
	// engine forwards them to the Emitter immediately after node_end.
	Events []NodeEvent

	// Err contains any error that occurred during node execution. A
	// non-nil error halts the run and Run returns it; rerouting to an
	// error-handler node is done by package workflow's Executor, not by
	// the engine.
	Err error
}

// NodeEvent is a node-level observability event a Node can attach to its
// NodeResult, in addition to the start/end events the engine emits
// automatically around every node visit.
type NodeEvent struct {
	Msg  string
	Meta map[string]interface{}
}

// Next specifies the next step in workflow execution after a node completes.
//
// Terminal and To are mutually exclusive; the zero value (neither set)
// means "consult the outgoing edges of this node".
type Next struct {
	// To specifies the next node to execute. Mutually exclusive with
	// Terminal.
	To string

	// Terminal indicates workflow execution should stop after this node.
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc adapts a plain function to the Node interface, so simple nodes
// don't need a dedicated type.
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError is a structured error produced during node execution, carrying
// enough context (which node, what code, the underlying cause) for the
// error decorator in package workflow to build a typed taxonomy error
// without losing the original failure.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
