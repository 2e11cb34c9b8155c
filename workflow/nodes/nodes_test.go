package nodes

import (
	"testing"

	"github.com/chatforge/workflow/workflow"
)

func TestRegisterAll_RegistersEveryBuiltinNodeType(t *testing.T) {
	r := workflow.NewRegistry()
	RegisterAll(r)

	want := []workflow.NodeType{
		workflow.NodeStart,
		workflow.NodeModel,
		workflow.NodeTool,
		workflow.NodeRetrieval,
		workflow.NodeMemory,
		workflow.NodeConditional,
		workflow.NodeLoop,
		workflow.NodeVariable,
		workflow.NodeDelay,
		workflow.NodeErrorHandler,
	}

	for _, nt := range want {
		if _, ok := r.Get(nt); !ok {
			t.Errorf("node type %q was not registered by RegisterAll", nt)
		}
	}

	got := r.List()
	if len(got) != len(want) {
		t.Errorf("registry has %d node types after RegisterAll, want %d", len(got), len(want))
	}
}

func TestGetString(t *testing.T) {
	cfg := map[string]interface{}{"name": "hello"}
	if got := getString(cfg, "name", "fallback"); got != "hello" {
		t.Errorf("getString() = %q, want %q", got, "hello")
	}
	if got := getString(cfg, "missing", "fallback"); got != "fallback" {
		t.Errorf("getString() = %q, want %q", got, "fallback")
	}
}

func TestGetInt(t *testing.T) {
	cases := map[string]interface{}{
		"int":     5,
		"int64":   int64(7),
		"float64": float64(9),
	}
	for key, val := range cases {
		cfg := map[string]interface{}{key: val}
		if got := getInt(cfg, key, -1); got <= 0 {
			t.Errorf("getInt(%q) = %d, want a positive value decoded from %T", key, got, val)
		}
	}
	if got := getInt(map[string]interface{}{}, "missing", 42); got != 42 {
		t.Errorf("getInt() default = %d, want 42", got)
	}
}

func TestGetStringSlice(t *testing.T) {
	cfg := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	got := getStringSlice(cfg, "tags")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("getStringSlice() = %+v, want [a b]", got)
	}
	if got := getStringSlice(map[string]interface{}{}, "missing"); got != nil {
		t.Errorf("getStringSlice() for missing key = %+v, want nil", got)
	}
}
