package nodes

import (
	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/workflow"
)

// modelDescriptor registers the model node: the only node type that calls
// an LLM. It forwards the conversation so far, offers every bound tool
// (NodeContext.Tools is already empty when tools aren't enabled, so this
// node never needs to consult WorkflowConfig directly), streams partial
// output through NodeContext.OnToken when present, and publishes a
// UsageRecorded event so the Aggregator sees the call even though the
// Aggregator itself never touches model.ChatModel (spec.md §4.2, §4.4).
func modelDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeModel,
		DisplayName: "Model",
		Category:    "llm",
		ConfigKeys:  []workflow.ConfigKey{},
		ReadFields:  []string{"messages"},
		WriteFields: []string{"messages", "pendingToolCalls", "usageMetadata"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			return workflow.NodeFunc(runModel), nil
		},
	}
}

func runModel(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
	if ctx.LLM == nil {
		return workflow.NodeResult{}, workflow.ConfigErrorf("model node %s: no chat model bound", ctx.NodeID)
	}

	specs := toolSpecs(ctx)

	out, err := callModel(ctx, state.Messages, specs)
	if err != nil {
		return workflow.NodeResult{}, workflow.ProviderErrorf(true, err, "model call failed: %v", err)
	}

	delta := workflow.ExecutionState{
		UsageMetadata: &workflow.UsageMetadata{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
	}
	if out.Text != "" {
		delta.Messages = []model.Message{{Role: model.RoleAssistant, Content: out.Text}}
	}
	// An explicit non-nil (possibly empty) slice signals the reducer to
	// replace rather than ignore — a turn with no tool calls clears any
	// pending ones left from an earlier turn.
	delta.PendingToolCalls = out.ToolCalls
	if delta.PendingToolCalls == nil {
		delta.PendingToolCalls = []model.ToolCall{}
	}

	events := []workflow.LifecycleEvent{
		workflow.NewLifecycleEvent(workflow.EventUsageRecorded, ctx.RunID, ctx.NodeID, ctx.Step, map[string]interface{}{
			"inputTokens":  out.Usage.InputTokens,
			"outputTokens": out.Usage.OutputTokens,
			"model":        out.Model,
			"finishReason": out.FinishReason,
		}),
	}

	var route workflow.Next
	if len(out.ToolCalls) == 0 {
		// No tool calls requested: this turn is done. The blueprint still
		// declares an outgoing edge per spec.md §8's structural requirement,
		// but Route.Terminal short-circuits edge evaluation entirely.
		route = workflow.Stop()
	}

	return workflow.NodeResult{Delta: delta, Route: route, Events: events}, nil
}

func callModel(ctx workflow.NodeContext, messages []model.Message, specs []model.ToolSpec) (model.ChatOut, error) {
	if streaming, ok := ctx.LLM.(model.StreamingChatModel); ok && ctx.OnToken != nil {
		return streaming.ChatStream(ctx.Ctx, messages, specs, ctx.OnToken)
	}
	return ctx.LLM.Chat(ctx.Ctx, messages, specs)
}

func toolSpecs(ctx workflow.NodeContext) []model.ToolSpec {
	if len(ctx.Tools) == 0 {
		return nil
	}
	specs := make([]model.ToolSpec, 0, len(ctx.Tools))
	for name := range ctx.Tools {
		specs = append(specs, model.ToolSpec{Name: name})
	}
	return specs
}
