package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/graph/store"
)

func counterReducer(prev, delta counterState) counterState {
	prev.Count += delta.Count
	return prev
}

func newTestEngine() *Engine[counterState] {
	return New[counterState](counterReducer, store.NewMemStore[counterState](), emit.NewNullEmitter())
}

func TestEngine_Add_DuplicateNodeRejected(t *testing.T) {
	e := newTestEngine()
	n := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Route: Stop()}
	})

	if err := e.Add("step", n); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := e.Add("step", n); err == nil {
		t.Fatal("expected error adding duplicate node ID")
	}
}

func TestEngine_StartAt_RequiresExistingNode(t *testing.T) {
	e := newTestEngine()
	if err := e.StartAt("missing"); err == nil {
		t.Fatal("expected error for unregistered start node")
	}
}

func TestEngine_Run_LinearChain(t *testing.T) {
	e := newTestEngine()

	step := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 1}, Route: Next{To: "finish"}}
	})
	finish := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 1}, Route: Stop()}
	})

	_ = e.Add("step", step)
	_ = e.Add("finish", finish)
	_ = e.StartAt("step")

	final, err := e.Run(context.Background(), "run-1", counterState{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if final.Count != 2 {
		t.Errorf("final.Count = %d, want 2", final.Count)
	}
}

func TestEngine_Run_MaxStepsExceeded(t *testing.T) {
	e := New[counterState](counterReducer, store.NewMemStore[counterState](), emit.NewNullEmitter(), Options{MaxSteps: 2})

	loop := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 1}, Route: Next{To: "loop"}}
	})
	_ = e.Add("loop", loop)
	_ = e.StartAt("loop")

	_, err := e.Run(context.Background(), "run-2", counterState{})
	if err == nil {
		t.Fatal("expected MAX_STEPS_EXCEEDED error")
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != "MAX_STEPS_EXCEEDED" {
		t.Errorf("expected EngineError{Code: MAX_STEPS_EXCEEDED}, got %v", err)
	}
}

func TestEngine_Run_EdgeRoutingRespectsOrder(t *testing.T) {
	e := newTestEngine()

	start := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 1}}
	})
	low := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 10}, Route: Stop()}
	})
	high := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 100}, Route: Stop()}
	})

	_ = e.Add("start", start)
	_ = e.Add("low", low)
	_ = e.Add("high", high)
	_ = e.StartAt("start")

	alwaysTrue := func(counterState) bool { return true }
	_ = e.ConnectOrdered("start", "high", alwaysTrue, 5)
	_ = e.ConnectOrdered("start", "low", alwaysTrue, 1)

	final, err := e.Run(context.Background(), "run-3", counterState{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if final.Count != 1+10 {
		t.Errorf("final.Count = %d, want 11 (lowest-order edge should win)", final.Count)
	}
}

func TestEngine_Run_RetryRecoversFromTransientError(t *testing.T) {
	attempts := 0
	flaky := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		attempts++
		if attempts < 3 {
			return NodeResult[counterState]{Err: errors.New("transient")}
		}
		return NodeResult[counterState]{Delta: counterState{Count: 1}, Route: Stop()}
	})

	policy := NodePolicy{
		RetryPolicy: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Retryable:   func(error) bool { return true },
		},
	}

	e := New[counterState](counterReducer, store.NewMemStore[counterState](), emit.NewNullEmitter(),
		WithNodePolicy("flaky", policy))
	_ = e.Add("flaky", flaky)
	_ = e.StartAt("flaky")

	final, err := e.Run(context.Background(), "run-4", counterState{})
	if err != nil {
		t.Fatalf("Run returned error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if final.Count != 1 {
		t.Errorf("final.Count = %d, want 1", final.Count)
	}
}

func TestEngine_Run_NonRetryableErrorHaltsImmediately(t *testing.T) {
	attempts := 0
	failing := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		attempts++
		return NodeResult[counterState]{Err: errors.New("permanent")}
	})

	policy := NodePolicy{
		RetryPolicy: &RetryPolicy{MaxAttempts: 5, Retryable: func(error) bool { return false }},
	}

	e := New[counterState](counterReducer, store.NewMemStore[counterState](), emit.NewNullEmitter(),
		WithNodePolicy("failing", policy))
	_ = e.Add("failing", failing)
	_ = e.StartAt("failing")

	_, err := e.Run(context.Background(), "run-5", counterState{})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-retryable error must not retry)", attempts)
	}
}

func TestEngine_CheckpointSaveAndResume(t *testing.T) {
	e := newTestEngine()

	step := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Delta: counterState{Count: 1}, Route: Stop()}
	})
	_ = e.Add("step", step)
	_ = e.StartAt("step")

	_, err := e.Run(context.Background(), "run-6", counterState{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if err := e.SaveCheckpoint(context.Background(), "run-6", "cp-1"); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	final, err := e.ResumeFromCheckpoint(context.Background(), "cp-1", "run-6-resumed", "step")
	if err != nil {
		t.Fatalf("ResumeFromCheckpoint failed: %v", err)
	}
	if final.Count != 2 {
		t.Errorf("resumed final.Count = %d, want 2 (1 from original run + 1 from resumed step)", final.Count)
	}
}

func TestEngine_Run_RequiresStartNode(t *testing.T) {
	e := newTestEngine()
	_, err := e.Run(context.Background(), "run-7", counterState{})
	if err == nil {
		t.Fatal("expected error when no start node is set")
	}
}

func TestEngine_Run_ContextCancellation(t *testing.T) {
	e := newTestEngine()

	loop := NodeFunc[counterState](func(_ context.Context, s counterState) NodeResult[counterState] {
		return NodeResult[counterState]{Route: Next{To: "loop"}}
	})
	_ = e.Add("loop", loop)
	_ = e.StartAt("loop")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, "run-8", counterState{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

var _ store.Store[counterState] = store.NewMemStore[counterState]()
