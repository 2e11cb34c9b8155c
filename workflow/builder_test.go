package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/chatforge/workflow/graph"
)

type fakeNode struct {
	run func(ctx NodeContext, state ExecutionState) (NodeResult, error)
}

func (f fakeNode) Run(ctx NodeContext, state ExecutionState) (NodeResult, error) {
	return f.run(ctx, state)
}

func withRecordingPublisher(ctx context.Context) (context.Context, *[]EventKind) {
	var kinds []EventKind
	publish := func(e LifecycleEvent) { kinds = append(kinds, e.Kind) }
	return context.WithValue(ctx, publishKey{}, publish), &kinds
}

func TestAdaptNode_SuccessPublishesStartedThenCompleted(t *testing.T) {
	ctx, kinds := withRecordingPublisher(context.Background())
	node := adaptNode("n1", fakeNode{run: func(NodeContext, ExecutionState) (NodeResult, error) {
		return NodeResult{}, nil
	}})

	if _, err := callAdapted(node, ctx, ExecutionState{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []EventKind{EventNodeStarted, EventNodeCompleted}
	assertEventKinds(t, *kinds, want)
}

func TestAdaptNode_RunErrorPublishesStartedThenFailedExactlyOnce(t *testing.T) {
	ctx, kinds := withRecordingPublisher(context.Background())
	node := adaptNode("n1", fakeNode{run: func(NodeContext, ExecutionState) (NodeResult, error) {
		return NodeResult{}, errors.New("boom")
	}})

	if _, err := callAdapted(node, ctx, ExecutionState{}); err == nil {
		t.Fatalf("expected an error result")
	}

	want := []EventKind{EventNodeStarted, EventNodeFailed}
	assertEventKinds(t, *kinds, want)
}

func TestAdaptNode_ResultErrPublishesStartedThenFailedExactlyOnce(t *testing.T) {
	ctx, kinds := withRecordingPublisher(context.Background())
	node := adaptNode("n1", fakeNode{run: func(NodeContext, ExecutionState) (NodeResult, error) {
		return NodeResult{Err: errors.New("bad route")}, nil
	}})

	if _, err := callAdapted(node, ctx, ExecutionState{}); err == nil {
		t.Fatalf("expected an error result")
	}

	want := []EventKind{EventNodeStarted, EventNodeFailed}
	assertEventKinds(t, *kinds, want)
}

// callAdapted invokes the graph.Node produced by adaptNode the same way the
// engine would, returning the error it reports (if any) for the caller's
// convenience — the event-pairing assertions care about *kinds, not this
// return value.
func callAdapted(node graph.Node[ExecutionState], ctx context.Context, state ExecutionState) (graph.NodeResult[ExecutionState], error) {
	result := node.Run(ctx, state)
	return result, result.Err
}

func assertEventKinds(t *testing.T, got []EventKind, want []EventKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("published events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("published events = %v, want %v", got, want)
		}
	}
}
