package nodes

import (
	"context"
	"testing"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/tool"
	"github.com/chatforge/workflow/workflow"
)

func buildToolNode(t *testing.T, config map[string]interface{}) workflow.Node {
	t.Helper()
	desc := toolDescriptor()
	impl, err := desc.Factory(config)
	if err != nil {
		t.Fatalf("Factory returned error: %v", err)
	}
	return impl
}

func TestToolNode_EffectiveCapIsMinimumOfGlobalAndNode(t *testing.T) {
	mock := &tool.MockTool{ToolName: "search", Responses: []map[string]interface{}{{"ok": true}}}

	tests := []struct {
		name         string
		nodeConfig   map[string]interface{}
		maxToolCalls int // WorkflowConfig.MaxToolCalls on NodeContext
		priorCount   int
		pending      int
		wantErr      bool
	}{
		{
			name:         "node maxCalls tighter than global is enforced",
			nodeConfig:   map[string]interface{}{"maxCalls": 2},
			maxToolCalls: 10,
			priorCount:   2,
			pending:      1,
			wantErr:      true, // 2 prior + 1 pending = 3 > node cap of 2
		},
		{
			name:         "node maxCalls looser than global never widens the cap",
			nodeConfig:   map[string]interface{}{"maxCalls": 100},
			maxToolCalls: 3,
			priorCount:   3,
			pending:      1,
			wantErr:      true, // 3 prior + 1 pending = 4 > global cap of 3
		},
		{
			name:         "no node maxCalls falls back to global alone",
			nodeConfig:   map[string]interface{}{},
			maxToolCalls: 1,
			priorCount:   1,
			pending:      1,
			wantErr:      true, // 1 prior + 1 pending = 2 > global cap of 1
		},
		{
			name:         "within both caps succeeds",
			nodeConfig:   map[string]interface{}{"maxCalls": 5},
			maxToolCalls: 5,
			priorCount:   1,
			pending:      1,
			wantErr:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := buildToolNode(t, tt.nodeConfig)

			calls := make([]model.ToolCall, tt.pending)
			for i := range calls {
				calls[i] = model.ToolCall{ID: "call", Name: "search", Input: map[string]interface{}{}}
			}
			state := workflow.ExecutionState{PendingToolCalls: calls, ToolCallCount: tt.priorCount}

			nodeCtx := workflow.NodeContext{
				Ctx:          context.Background(),
				RunID:        "run-1",
				NodeID:       "tool",
				Tools:        map[string]tool.Tool{"search": mock},
				MaxToolCalls: tt.maxToolCalls,
			}

			_, err := node.Run(nodeCtx, state)
			if tt.wantErr && err == nil {
				t.Fatalf("expected a LimitError, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.wantErr {
				var wfErr *workflow.Error
				if !asWorkflowError(err, &wfErr) {
					t.Fatalf("expected *workflow.Error, got %T", err)
				}
				if wfErr.Kind != workflow.KindLimit {
					t.Fatalf("Kind = %v, want %v", wfErr.Kind, workflow.KindLimit)
				}
			}
		})
	}
}

func TestToolNode_NoPendingCallsIsNoOp(t *testing.T) {
	node := buildToolNode(t, map[string]interface{}{})
	nodeCtx := workflow.NodeContext{Ctx: context.Background(), Tools: map[string]tool.Tool{}}

	result, err := node.Run(nodeCtx, workflow.ExecutionState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Delta.PendingToolCalls == nil || len(result.Delta.PendingToolCalls) != 0 {
		t.Fatalf("PendingToolCalls delta = %+v, want non-nil empty slice", result.Delta.PendingToolCalls)
	}
}

func TestToolNode_DispatchesBoundToolAndAppendsToolMessage(t *testing.T) {
	mock := &tool.MockTool{ToolName: "search", Responses: []map[string]interface{}{{"result": "ok"}}}
	node := buildToolNode(t, map[string]interface{}{})

	state := workflow.ExecutionState{
		PendingToolCalls: []model.ToolCall{{ID: "1", Name: "search", Input: map[string]interface{}{"q": "go"}}},
	}
	nodeCtx := workflow.NodeContext{
		Ctx:          context.Background(),
		Tools:        map[string]tool.Tool{"search": mock},
		MaxToolCalls: 10,
	}

	result, err := node.Run(nodeCtx, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Delta.Messages) != 1 || result.Delta.Messages[0].Role != model.RoleTool {
		t.Fatalf("Messages delta = %+v, want one tool-role message", result.Delta.Messages)
	}
	if result.Delta.ToolCallCount != 1 {
		t.Fatalf("ToolCallCount delta = %d, want 1", result.Delta.ToolCallCount)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("mock tool call count = %d, want 1", mock.CallCount())
	}
}

// asWorkflowError is a small helper so the table test above can assert on
// *workflow.Error without every case needing its own type switch.
func asWorkflowError(err error, target **workflow.Error) bool {
	we, ok := err.(*workflow.Error)
	if !ok {
		return false
	}
	*target = we
	return true
}
