package graph

// Edge represents a directed connection between two nodes in the workflow
// graph.
//
// Edges can be:
//   - Unconditional: always traverse (When == nil).
//   - Conditional: only traverse if When(state) returns true.
//
// At runtime the Engine evaluates a node's outgoing edges in ascending
// Order to determine which one to follow; a node's explicit NodeResult.Route
// overrides edge-based routing entirely.
//
// Type parameter S is the state type used for predicate evaluation.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID.
	To string

	// When is an optional predicate that determines if this edge should be
	// traversed. Nil means unconditional.
	When Predicate[S]

	// Label names the branch this edge represents (e.g. a conditional
	// node's branch value, or "body"/"exit" for a loop node). The engine
	// does not read it and routing-decision events do not include it.
	Label string

	// Order breaks ties when more than one conditional edge from the same
	// node would match the same state; the lowest Order wins. Package
	// workflow's Validator requires an order on every outgoing edge of a
	// conditional node with more than one edge; it does not check that the
	// values are distinct.
	Order int
}

// Predicate evaluates state to determine if an edge should be traversed.
// Predicates must be pure: deterministic and side-effect free.
//
// Type parameter S is the state type to evaluate.
type Predicate[S any] func(state S) bool
