package graph

import (
	"context"
	"errors"
	"testing"
)

type counterState struct {
	Count int
}

func TestNodeFunc_Run(t *testing.T) {
	var called bool
	n := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		called = true
		return NodeResult[counterState]{Delta: counterState{Count: s.Count + 1}, Route: Stop()}
	})

	result := n.Run(context.Background(), counterState{Count: 1})

	if !called {
		t.Fatal("NodeFunc did not invoke the wrapped function")
	}
	if result.Delta.Count != 2 {
		t.Errorf("Delta.Count = %d, want 2", result.Delta.Count)
	}
	if !result.Route.Terminal {
		t.Error("expected terminal route")
	}
}

func TestStopAndGoto(t *testing.T) {
	if next := Stop(); !next.Terminal || next.To != "" {
		t.Errorf("Stop() = %+v, want Terminal=true To=\"\"", next)
	}
	if next := Goto("next"); next.Terminal || next.To != "next" {
		t.Errorf("Goto(\"next\") = %+v, want Terminal=false To=next", next)
	}
}

func TestNodeError(t *testing.T) {
	cause := errors.New("boom")
	err := &NodeError{Message: "failed", Code: "X", NodeID: "fetch", Cause: cause}

	if got := err.Error(); got != "node fetch: failed" {
		t.Errorf("Error() = %q, want %q", got, "node fetch: failed")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to cause")
	}

	bare := &NodeError{Message: "failed"}
	if got := bare.Error(); got != "failed" {
		t.Errorf("Error() with no NodeID = %q, want %q", got, "failed")
	}
}
