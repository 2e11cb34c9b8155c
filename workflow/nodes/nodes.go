// Package nodes registers the built-in node types against a
// workflow.Registry. Importing this package for its side effects is not
// enough — callers must call RegisterAll explicitly so the set of available
// node types stays an explicit decision at wiring time, not an import-order
// accident.
package nodes

import "github.com/chatforge/workflow/workflow"

// RegisterAll registers every built-in node type described in spec.md §4.1
// against r. Call once per process, before any blueprint is validated or
// built.
func RegisterAll(r *workflow.Registry) {
	r.Register(startDescriptor())
	r.Register(modelDescriptor())
	r.Register(toolDescriptor())
	r.Register(retrievalDescriptor())
	r.Register(memoryDescriptor())
	r.Register(conditionalDescriptor())
	r.Register(loopDescriptor())
	r.Register(variableDescriptor())
	r.Register(delayDescriptor())
	r.Register(errorHandlerDescriptor())
}

func getString(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

func getInt(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func getStringSlice(config map[string]interface{}, key string) []string {
	raw, ok := config[key].([]interface{})
	if !ok {
		if direct, ok := config[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
