package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// NodeType names one of the closed set of node variants registered in the
// Node Registry. It is a string rather than an enum of typed constants so
// the registry can reject unknown values uniformly, the same tagged-variant
// approach spec.md §9 calls for ("no open inheritance — new behaviors are
// new variants").
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeModel        NodeType = "model"
	NodeTool         NodeType = "tool"
	NodeRetrieval    NodeType = "retrieval"
	NodeMemory       NodeType = "memory"
	NodeConditional  NodeType = "conditional"
	NodeLoop         NodeType = "loop"
	NodeVariable     NodeType = "variable"
	NodeDelay        NodeType = "delay"
	NodeErrorHandler NodeType = "error-handler"
)

// BlueprintNode is one node declaration inside a WorkflowBlueprint.
type BlueprintNode struct {
	ID     string                 `json:"id" yaml:"id"`
	Type   NodeType               `json:"type" yaml:"type"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// BlueprintEdge is one directed edge inside a WorkflowBlueprint. Condition is
// the declared branch value a conditional node's evaluated result must equal
// for this edge to be taken; Order breaks ties among multiple matching edges
// from the same conditional node (spec.md §4.1 — "smaller order field wins").
type BlueprintEdge struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Order     *int   `json:"order,omitempty" yaml:"order,omitempty"`
}

// WorkflowBlueprint is a normalized, executable workflow description: the
// Graph Builder's sole input once the Preparation Service has resolved a
// WorkflowSource down to this shape.
type WorkflowBlueprint struct {
	ID    string          `json:"id,omitempty" yaml:"id,omitempty"`
	Nodes []BlueprintNode `json:"nodes" yaml:"nodes"`
	Edges []BlueprintEdge `json:"edges" yaml:"edges"`
}

// NodeByID returns the node with the given ID, or false if none exists.
func (b *WorkflowBlueprint) NodeByID(id string) (BlueprintNode, bool) {
	for _, n := range b.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return BlueprintNode{}, false
}

// OutgoingEdges returns every edge whose From matches nodeID, in declaration order.
func (b *WorkflowBlueprint) OutgoingEdges(nodeID string) []BlueprintEdge {
	var out []BlueprintEdge
	for _, e := range b.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the blueprint's single start node. The validator
// guarantees exactly one exists before a blueprint reaches the builder;
// callers past that point may treat the second return value as a
// can't-happen invariant check.
func (b *WorkflowBlueprint) StartNode() (BlueprintNode, bool) {
	for _, n := range b.Nodes {
		if n.Type == NodeStart {
			return n, true
		}
	}
	return BlueprintNode{}, false
}

// Hash returns a stable digest of the blueprint plus the bound config shape,
// used as the Graph Builder's compilation cache key (spec.md §9 "Blueprint
// cache"). Nodes/edges are sorted before hashing so two blueprints that
// differ only in declaration order hash identically.
func (b *WorkflowBlueprint) Hash(boundConfigShape string) string {
	sorted := *b
	sorted.Nodes = append([]BlueprintNode{}, b.Nodes...)
	sorted.Edges = append([]BlueprintEdge{}, b.Edges...)
	sort.Slice(sorted.Nodes, func(i, j int) bool { return sorted.Nodes[i].ID < sorted.Nodes[j].ID })
	sort.Slice(sorted.Edges, func(i, j int) bool {
		if sorted.Edges[i].From != sorted.Edges[j].From {
			return sorted.Edges[i].From < sorted.Edges[j].From
		}
		return sorted.Edges[i].To < sorted.Edges[j].To
	})

	payload, _ := json.Marshal(struct {
		Blueprint   WorkflowBlueprint
		ConfigShape string
	}{sorted, boundConfigShape})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SourceKind discriminates the three ways a workflow may be described.
type SourceKind string

const (
	SourceInline     SourceKind = "inline"
	SourceDefinition SourceKind = "definition"
	SourceTemplate   SourceKind = "template"
)

// WorkflowSource is the discriminated union the Preparation Service
// resolves into a WorkflowBlueprint. Exactly one of the kind-specific
// fields is populated, matching Kind.
type WorkflowSource struct {
	Kind SourceKind `json:"kind"`

	// Inline carries a caller-supplied blueprint directly (kind=inline).
	Inline *WorkflowBlueprint `json:"inline,omitempty"`

	// DefinitionID references a stored blueprint by id (kind=definition).
	DefinitionID string `json:"definitionId,omitempty"`

	// TemplateName + TemplateParams identify a named, parameterized
	// template (kind=template).
	TemplateName   string                 `json:"templateName,omitempty"`
	TemplateParams map[string]interface{} `json:"templateParams,omitempty"`
}

// Validate checks that exactly one kind-specific field is populated,
// consistent with its declared Kind. This is a shape check only; the
// Validator (validator.go) checks the resolved blueprint's structural
// invariants.
func (s *WorkflowSource) Validate() error {
	switch s.Kind {
	case SourceInline:
		if s.Inline == nil {
			return ValidationErrorf("source kind %q requires inline blueprint", s.Kind)
		}
	case SourceDefinition:
		if s.DefinitionID == "" {
			return ValidationErrorf("source kind %q requires definitionId", s.Kind)
		}
	case SourceTemplate:
		if s.TemplateName == "" {
			return ValidationErrorf("source kind %q requires templateName", s.Kind)
		}
	default:
		return ValidationErrorf("unknown source kind %q", s.Kind)
	}
	return nil
}
