package nodes

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/tool"
	"github.com/chatforge/workflow/workflow"
)

// TestToolNode_CapInvariantProperty checks the invariant this build's
// review flagged as broken: toolCallCount never exceeds the effective cap,
// which is the lesser of WorkflowConfig.MaxToolCalls and an optional
// tighter per-node maxCalls, for any combination of prior usage, pending
// call count, and the two caps.
func TestToolNode_CapInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a tool dispatch never pushes toolCallCount past the effective cap", prop.ForAll(
		func(globalCap, nodeCap, prior, pending int) bool {
			effectiveCap := globalCap
			hasNodeCap := nodeCap > 0
			if hasNodeCap && (effectiveCap <= 0 || nodeCap < effectiveCap) {
				effectiveCap = nodeCap
			}

			config := map[string]interface{}{}
			if hasNodeCap {
				config["maxCalls"] = nodeCap
			}
			node := toolDescriptor()
			impl, err := node.Factory(config)
			if err != nil {
				t.Fatalf("Factory returned error: %v", err)
			}

			calls := make([]model.ToolCall, pending)
			for i := range calls {
				calls[i] = model.ToolCall{ID: "c", Name: "search", Input: map[string]interface{}{}}
			}
			state := workflow.ExecutionState{PendingToolCalls: calls, ToolCallCount: prior}
			nodeCtx := workflow.NodeContext{
				Ctx:          context.Background(),
				Tools:        map[string]tool.Tool{"search": &tool.MockTool{ToolName: "search"}},
				MaxToolCalls: globalCap,
			}

			result, runErr := impl.Run(nodeCtx, state)

			wouldExceed := effectiveCap > 0 && prior+pending > effectiveCap
			if wouldExceed {
				return runErr != nil
			}
			if runErr != nil {
				return false
			}
			return prior+result.Delta.ToolCallCount <= effectiveCap || effectiveCap <= 0
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
