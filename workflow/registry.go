package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ConfigKey describes one key a node type's config accepts.
type ConfigKey struct {
	Name     string
	Type     string // "string", "number", "boolean", "array", "object"
	Required bool
	Default  interface{}
}

// NodeTypeDescriptor is the Node Registry's catalog entry for one node
// type. The Control API's ListNodeTypes is a thin projection of these
// (spec.md §4.1).
type NodeTypeDescriptor struct {
	Type        NodeType
	DisplayName string
	Category    string
	ConfigKeys  []ConfigKey
	ReadFields  []string
	WriteFields []string

	// Factory constructs a Node instance from validated config. It never
	// sees invalid config — the registry validates against Schema first.
	Factory func(config map[string]interface{}) (Node, error)

	// schema is compiled lazily from ConfigKeys the first time Validate is
	// called against this descriptor.
	schema     *jsonschema.Schema
	schemaOnce sync.Once
	schemaErr  error
}

// Node is the interface every node-type implementation satisfies. It
// mirrors graph.Node[ExecutionState] but is declared independently so
// package workflow doesn't need to import graph's generic machinery at the
// registry layer; builder.go adapts a Node into a graph.Node[ExecutionState]
// when it compiles the blueprint.
type Node interface {
	// Run executes one visit of this node against the current state,
	// returning the partial state update and routing decision.
	Run(ctx NodeContext, state ExecutionState) (NodeResult, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx NodeContext, state ExecutionState) (NodeResult, error)

func (f NodeFunc) Run(ctx NodeContext, state ExecutionState) (NodeResult, error) {
	return f(ctx, state)
}

// buildSchema compiles this descriptor's ConfigKeys into a JSON Schema,
// memoized on first use since every node instance of the same type shares
// one descriptor.
func (d *NodeTypeDescriptor) buildSchema() (*jsonschema.Schema, error) {
	d.schemaOnce.Do(func() {
		properties := map[string]interface{}{}
		var required []string
		for _, key := range d.ConfigKeys {
			prop := map[string]interface{}{"type": jsonSchemaType(key.Type)}
			properties[key.Name] = prop
			if key.Required {
				required = append(required, key.Name)
			}
		}

		doc := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			doc["required"] = required
		}

		compiler := jsonschema.NewCompiler()
		schemaURL := "mem://" + string(d.Type) + ".json"
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			d.schemaErr = fmt.Errorf("add schema resource for node type %s: %w", d.Type, err)
			return
		}
		schema, err := compiler.Compile(schemaURL)
		if err != nil {
			d.schemaErr = fmt.Errorf("compile schema for node type %s: %w", d.Type, err)
			return
		}
		d.schema = schema
	})
	return d.schema, d.schemaErr
}

// Validate checks config against this descriptor's declared keys.
func (d *NodeTypeDescriptor) Validate(config map[string]interface{}) error {
	schema, err := d.buildSchema()
	if err != nil {
		return InternalErrorf("node type %s: %v", d.Type, err)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	if err := schema.Validate(config); err != nil {
		return ValidationErrorf("node type %s config: %v", d.Type, err)
	}
	return nil
}

func jsonSchemaType(t string) string {
	switch t {
	case "string", "number", "boolean", "array", "object":
		return t
	default:
		return "string"
	}
}

// Registry is the single authoritative catalog of node types (spec.md
// §4.1). Adding a node type means registering here and nowhere else.
type Registry struct {
	mu    sync.RWMutex
	types map[NodeType]*NodeTypeDescriptor
}

// NewRegistry returns an empty registry; nodes.RegisterAll populates it with
// the ten node types spec.md §4.1 declares.
func NewRegistry() *Registry {
	return &Registry{types: make(map[NodeType]*NodeTypeDescriptor)}
}

// Register adds a descriptor to the catalog. Registering a type twice is a
// programmer error — it panics, matching the teacher's Add-on-Engine
// duplicate-node behavior of refusing silently-shadowed registrations.
func (r *Registry) Register(desc *NodeTypeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[desc.Type]; exists {
		panic(fmt.Sprintf("workflow: node type %q already registered", desc.Type))
	}
	r.types[desc.Type] = desc
}

// List returns every registered descriptor, sorted by type name for
// deterministic API responses.
func (r *Registry) List() []*NodeTypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NodeTypeDescriptor, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Get returns the descriptor for a node type.
func (r *Registry) Get(t NodeType) (*NodeTypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[t]
	return d, ok
}

// IsValid reports whether t is a registered node type.
func (r *Registry) IsValid(t NodeType) bool {
	_, ok := r.Get(t)
	return ok
}

// RequiredKeys returns the required config key names for a node type, or
// nil if the type isn't registered.
func (r *Registry) RequiredKeys(t NodeType) []string {
	d, ok := r.Get(t)
	if !ok {
		return nil
	}
	var required []string
	for _, key := range d.ConfigKeys {
		if key.Required {
			required = append(required, key.Name)
		}
	}
	return required
}
