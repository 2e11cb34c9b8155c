// Package graph provides the generic, state-threaded execution substrate
// used by the workflow package: a small typed graph of Node[S] values,
// connected by Edge[S] predicates, driven to completion by Engine[S].
//
// The package itself knows nothing about chat messages, LLMs, or tools —
// that domain lives in package workflow, which instantiates Engine[S] with
// S = workflow.ExecutionState. graph stays generic so it can be unit tested
// in isolation and reused for any state shape.
package graph

// Reducer merges a partial state update (delta) produced by a node into the
// accumulated state (prev) for the run.
//
// Reducers must be deterministic: replaying the same sequence of deltas
// against the same initial state always produces the same result. Typical
// shapes:
//
//   - Replace: if delta.Field is non-zero, adopt it; otherwise keep prev.
//   - Accumulate: prev.Counter += delta.Counter.
//   - Merge: union delta.Map into prev.Map.
//
// Type parameter S is the state type shared across a workflow run.
type Reducer[S any] func(prev S, delta S) S
