package nodes

import (
	"encoding/json"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/workflow"
)

// toolDescriptor registers the tool node: it consumes
// ExecutionState.PendingToolCalls left by the preceding model node,
// dispatches each through NodeContext.Tools, appends the results as tool
// messages, and clears the pending list so a model node never re-executes
// the same calls on its next turn (spec.md §4.1, §7).
//
// maxCalls is an optional per-node tightening of the bound, never a way to
// loosen it: the effective cap enforced at runtime is always
// min(maxCalls, WorkflowConfig.MaxToolCalls) — the global config value is
// the authoritative invariant spec.md §3 names, not a per-node default.
func toolDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeTool,
		DisplayName: "Tool",
		Category:    "action",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "maxCalls", Type: "number"},
		},
		ReadFields:  []string{"pendingToolCalls"},
		WriteFields: []string{"messages", "pendingToolCalls", "toolCallCount"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			_, hasNodeMax := config["maxCalls"]
			nodeCap := getInt(config, "maxCalls", 0)
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				maxCalls := ctx.MaxToolCalls
				if hasNodeMax && nodeCap > 0 && (maxCalls <= 0 || nodeCap < maxCalls) {
					maxCalls = nodeCap
				}
				return runTool(ctx, state, maxCalls)
			}), nil
		},
	}
}

func runTool(ctx workflow.NodeContext, state workflow.ExecutionState, maxCalls int) (workflow.NodeResult, error) {
	calls := state.PendingToolCalls
	if len(calls) == 0 {
		return workflow.NodeResult{Delta: workflow.ExecutionState{PendingToolCalls: []model.ToolCall{}}}, nil
	}

	if maxCalls > 0 && state.ToolCallCount+len(calls) > maxCalls {
		return workflow.NodeResult{}, workflow.LimitErrorf(
			"tool node %s: %d calls would exceed the max of %d tool calls for this run",
			ctx.NodeID, state.ToolCallCount+len(calls), maxCalls)
	}

	allowed := make([]string, 0, len(ctx.Tools))
	for name := range ctx.Tools {
		allowed = append(allowed, name)
	}

	messages := make([]model.Message, 0, len(calls))
	events := make([]workflow.LifecycleEvent, 0, len(calls))

	for _, call := range calls {
		if err := workflow.CheckToolAllowed(call.Name, allowed); err != nil {
			return workflow.NodeResult{}, err
		}

		tool, ok := ctx.Tools[call.Name]
		if !ok {
			return workflow.NodeResult{}, workflow.ToolErrorf("tool %q is not bound for this run", call.Name)
		}

		output, err := tool.Call(ctx.Ctx, call.Input)
		ok = err == nil
		if err != nil {
			output = map[string]interface{}{"error": err.Error()}
		}

		content, _ := json.Marshal(output)
		messages = append(messages, model.Message{Role: model.RoleTool, Content: string(content)})
		events = append(events, workflow.NewLifecycleEvent(workflow.EventToolInvoked, ctx.RunID, ctx.NodeID, ctx.Step, map[string]interface{}{
			"tool": call.Name,
			"ok":   ok,
		}))
	}

	delta := workflow.ExecutionState{
		Messages:         messages,
		PendingToolCalls: []model.ToolCall{},
		ToolCallCount:    len(calls),
	}
	return workflow.NodeResult{Delta: delta, Events: events}, nil
}
