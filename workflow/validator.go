package workflow

import "fmt"

// ValidationIssue is one structural or semantic problem found in a
// blueprint or its config, in the {path, code, message} shape spec.md §4.6
// requires. The Control API's ValidateWorkflow returns a ValidationReport
// built from these; the Executor treats a non-empty report as a
// ValidationError and never starts a run.
type ValidationIssue struct {
	Path    string
	Code    string
	Message string
}

// ValidationReport is the Validator's full output.
type ValidationReport struct {
	Issues []ValidationIssue
}

// OK reports whether the report found no issues.
func (r ValidationReport) OK() bool { return len(r.Issues) == 0 }

// Validator is the single authoritative implementation of the structural
// and semantic checks in spec.md §3. Any editor/frontend validation is
// advisory and must be a subset of what this type enforces, never a
// superset.
type Validator struct {
	registry *Registry
}

// NewValidator builds a Validator against the given Node Registry, used to
// check that every node's declared type is registered and its config
// satisfies that type's schema.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate runs every blueprint invariant from spec.md §3 against b and
// returns the accumulated issues. It never short-circuits on the first
// problem, so a caller sees the full set in one pass.
func (v *Validator) Validate(b *WorkflowBlueprint) ValidationReport {
	var issues []ValidationIssue

	issues = append(issues, v.checkUniqueIDs(b)...)
	issues = append(issues, v.checkNodeTypes(b)...)
	issues = append(issues, v.checkSingleStart(b)...)
	issues = append(issues, v.checkNoEdgeTargetsStart(b)...)
	issues = append(issues, v.checkNoDuplicateEdges(b)...)
	issues = append(issues, v.checkReachability(b)...)
	issues = append(issues, v.checkOutgoingEdges(b)...)
	issues = append(issues, v.checkConditionalOrder(b)...)
	issues = append(issues, v.checkCycles(b)...)

	return ValidationReport{Issues: issues}
}

func (v *Validator) checkUniqueIDs(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	seen := make(map[string]bool)
	for _, n := range b.Nodes {
		if seen[n.ID] {
			issues = append(issues, ValidationIssue{
				Path: "nodes[" + n.ID + "]", Code: "DUPLICATE_NODE_ID",
				Message: fmt.Sprintf("node id %q declared more than once", n.ID),
			})
		}
		seen[n.ID] = true
	}
	return issues
}

func (v *Validator) checkNodeTypes(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	if v.registry == nil {
		return issues
	}
	for _, n := range b.Nodes {
		desc, ok := v.registry.Get(n.Type)
		if !ok {
			issues = append(issues, ValidationIssue{
				Path: "nodes[" + n.ID + "].type", Code: "UNKNOWN_NODE_TYPE",
				Message: fmt.Sprintf("node %q has unregistered type %q", n.ID, n.Type),
			})
			continue
		}
		if err := desc.Validate(n.Config); err != nil {
			issues = append(issues, ValidationIssue{
				Path: "nodes[" + n.ID + "].config", Code: "INVALID_NODE_CONFIG",
				Message: err.Error(),
			})
		}
	}
	return issues
}

func (v *Validator) checkSingleStart(b *WorkflowBlueprint) []ValidationIssue {
	count := 0
	for _, n := range b.Nodes {
		if n.Type == NodeStart {
			count++
		}
	}
	if count == 1 {
		return nil
	}
	code := "MISSING_START_NODE"
	if count > 1 {
		code = "MULTIPLE_START_NODES"
	}
	return []ValidationIssue{{
		Path: "nodes", Code: code,
		Message: fmt.Sprintf("blueprint must declare exactly one start node, found %d", count),
	}}
}

func (v *Validator) checkNoEdgeTargetsStart(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	start, ok := b.StartNode()
	if !ok {
		return nil
	}
	for _, e := range b.Edges {
		if e.To == start.ID {
			issues = append(issues, ValidationIssue{
				Path: "edges[" + e.From + "->" + e.To + "]", Code: "EDGE_TARGETS_START",
				Message: "no edge may target the start node",
			})
		}
	}
	return issues
}

func (v *Validator) checkNoDuplicateEdges(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	seen := make(map[string]bool)
	for _, e := range b.Edges {
		key := e.From + "->" + e.To
		if seen[key] {
			issues = append(issues, ValidationIssue{
				Path: "edges[" + key + "]", Code: "DUPLICATE_EDGE",
				Message: fmt.Sprintf("duplicate edge %s", key),
			})
		}
		seen[key] = true
	}
	return issues
}

func (v *Validator) checkReachability(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	start, ok := b.StartNode()
	if !ok {
		return nil
	}

	reachable := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range b.OutgoingEdges(cur) {
			if !reachable[e.To] {
				reachable[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	for _, n := range b.Nodes {
		if !reachable[n.ID] {
			issues = append(issues, ValidationIssue{
				Path: "nodes[" + n.ID + "]", Code: "UNREACHABLE_NODE",
				Message: fmt.Sprintf("node %q is not reachable from start", n.ID),
			})
		}
	}
	return issues
}

func (v *Validator) checkOutgoingEdges(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	for _, n := range b.Nodes {
		if len(b.OutgoingEdges(n.ID)) > 0 {
			continue
		}
		// delay/error-handler/loop exit can be effectively terminal; any
		// node with zero outgoing edges is a validation error per spec.md
		// §8's boundary behavior: "Zero outgoing edges from a non-terminal
		// node -> ValidationError." There is no declared terminal node
		// type — a node ends a run only via NodeResult.Route.Terminal at
		// runtime — so structurally every node must have somewhere to go.
		issues = append(issues, ValidationIssue{
			Path: "nodes[" + n.ID + "]", Code: "NO_OUTGOING_EDGES",
			Message: fmt.Sprintf("node %q has no outgoing edges", n.ID),
		})
	}
	return issues
}

func (v *Validator) checkConditionalOrder(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue
	for _, n := range b.Nodes {
		if n.Type != NodeConditional {
			continue
		}
		edges := b.OutgoingEdges(n.ID)
		if len(edges) <= 1 {
			continue
		}
		for _, e := range edges {
			if e.Order == nil {
				issues = append(issues, ValidationIssue{
					Path: "edges[" + e.From + "->" + e.To + "].order", Code: "MISSING_EDGE_ORDER",
					Message: "conditional node with multiple outgoing edges requires an order on each edge",
				})
			}
		}
	}
	return issues
}

func (v *Validator) checkCycles(b *WorkflowBlueprint) []ValidationIssue {
	var issues []ValidationIssue

	loopNodes := make(map[string]bool)
	terminatingTargets := make(map[string]bool)
	for _, n := range b.Nodes {
		if n.Type == NodeLoop {
			loopNodes[n.ID] = true
		}
		// A model node's declared outgoing edge is structural only: at
		// runtime it's taken only when the model requested a tool call,
		// and bypassed via Route.Terminal otherwise (see runModel). A
		// back-edge landing on one is therefore never the unbounded
		// recursion an illegal cycle warns about — the standard
		// model->tool->model agentic loop terminates the moment a turn
		// produces no further tool calls, with no NodeLoop involved.
		if n.Type == NodeModel {
			terminatingTargets[n.ID] = true
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(nodeID string) bool
	visit = func(nodeID string) bool {
		color[nodeID] = gray
		for _, e := range b.OutgoingEdges(nodeID) {
			switch color[e.To] {
			case gray:
				// A node's own self-edge (e.g. a terminal model node looping
				// to itself to satisfy "every node has an outgoing edge")
				// never unwinds into unbounded recursion — only a back-edge
				// into an *earlier* node needs the loop-node exemption.
				if e.To != nodeID && !loopNodes[nodeID] && !terminatingTargets[e.To] {
					issues = append(issues, ValidationIssue{
						Path: "edges[" + e.From + "->" + e.To + "]", Code: "ILLEGAL_CYCLE",
						Message: fmt.Sprintf("cycle through %q not declared as a loop back-edge", nodeID),
					})
				}
			case white:
				if !visit(e.To) {
					return false
				}
			}
		}
		color[nodeID] = black
		return true
	}

	for _, n := range b.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return issues
}
