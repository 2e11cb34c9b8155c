package workflow

import (
	"reflect"
	"testing"

	"github.com/chatforge/workflow/graph/model"
)

func TestReduceState_UsageMetadataOverwritesNotAccumulates(t *testing.T) {
	prev := ExecutionState{UsageMetadata: &UsageMetadata{InputTokens: 100, OutputTokens: 50}}
	delta := ExecutionState{UsageMetadata: &UsageMetadata{InputTokens: 10, OutputTokens: 5}}

	next := ReduceState(prev, delta)

	if next.UsageMetadata.InputTokens != 10 || next.UsageMetadata.OutputTokens != 5 {
		t.Fatalf("UsageMetadata must be overwritten by the latest model call, got %+v", next.UsageMetadata)
	}
}

func TestReduceState_UsageMetadataNilDeltaLeavesPrevUntouched(t *testing.T) {
	prev := ExecutionState{UsageMetadata: &UsageMetadata{InputTokens: 100, OutputTokens: 50}}

	next := ReduceState(prev, ExecutionState{})

	if next.UsageMetadata == nil || next.UsageMetadata.InputTokens != 100 {
		t.Fatalf("a node that never touches UsageMetadata must not clear it, got %+v", next.UsageMetadata)
	}
}

func TestReduceState_MessagesAppend(t *testing.T) {
	prev := ExecutionState{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	delta := ExecutionState{Messages: []model.Message{{Role: model.RoleAssistant, Content: "hello"}}}

	next := ReduceState(prev, delta)

	want := []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	if !reflect.DeepEqual(next.Messages, want) {
		t.Fatalf("Messages = %+v, want %+v", next.Messages, want)
	}

	// Mutating the result must never alias prev's backing array.
	next.Messages[0].Content = "mutated"
	if prev.Messages[0].Content != "hi" {
		t.Fatalf("ReduceState must copy, not alias, prev.Messages")
	}
}

func TestReduceState_ToolCallCountAccumulates(t *testing.T) {
	prev := ExecutionState{ToolCallCount: 2}
	next := ReduceState(prev, ExecutionState{ToolCallCount: 1})
	if next.ToolCallCount != 3 {
		t.Fatalf("ToolCallCount = %d, want 3", next.ToolCallCount)
	}
}

func TestReduceState_VariablesMergeRatherThanReplace(t *testing.T) {
	prev := ExecutionState{Variables: map[string]interface{}{"a": 1}}
	next := ReduceState(prev, ExecutionState{Variables: map[string]interface{}{"b": 2}})

	if next.Variables["a"] != 1 || next.Variables["b"] != 2 {
		t.Fatalf("Variables = %+v, want both a and b present", next.Variables)
	}
	if _, ok := prev.Variables["b"]; ok {
		t.Fatalf("ReduceState must not mutate prev.Variables in place")
	}
}

func TestReduceState_ExecutionHistoryAppends(t *testing.T) {
	prev := ExecutionState{ExecutionHistory: []HistoryEntry{{NodeID: "start", Step: 0}}}
	next := ReduceState(prev, ExecutionState{ExecutionHistory: []HistoryEntry{{NodeID: "model", Step: 1}}})

	if len(next.ExecutionHistory) != 2 || next.ExecutionHistory[1].NodeID != "model" {
		t.Fatalf("ExecutionHistory = %+v, want two appended entries", next.ExecutionHistory)
	}
}

func TestReduceState_PendingToolCallsClearedByNonNilEmptySlice(t *testing.T) {
	prev := ExecutionState{PendingToolCalls: []model.ToolCall{{ID: "1", Name: "search"}}}
	next := ReduceState(prev, ExecutionState{PendingToolCalls: []model.ToolCall{}})

	if next.PendingToolCalls == nil || len(next.PendingToolCalls) != 0 {
		t.Fatalf("PendingToolCalls = %+v, want a non-nil empty slice", next.PendingToolCalls)
	}
}

func TestUsageMetadata_TotalTokens(t *testing.T) {
	u := UsageMetadata{InputTokens: 7, OutputTokens: 3}
	if got := u.TotalTokens(); got != 10 {
		t.Fatalf("TotalTokens() = %d, want 10", got)
	}
}
