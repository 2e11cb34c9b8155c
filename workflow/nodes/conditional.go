package nodes

import (
	"fmt"
	"strings"

	"github.com/chatforge/workflow/workflow"
)

// conditionalDescriptor registers the conditional node: it evaluates a
// small declared expression and writes the resulting branch label to
// ExecutionState.ConditionalResults[nodeId], which the Graph Builder's
// edgePredicate matches against each outgoing edge's declared Condition
// (spec.md §4.1 — "smaller order field wins" governs ties among matches).
func conditionalDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeConditional,
		DisplayName: "Conditional",
		Category:    "control",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "mode", Type: "string", Default: "contains"},
			{Name: "variable", Type: "string"},
			{Name: "value", Type: "string"},
		},
		ReadFields:  []string{"messages", "variables"},
		WriteFields: []string{"conditionalResults"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			mode := getString(config, "mode", "contains")
			variable := getString(config, "variable", "")
			needle := getString(config, "value", "")
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				branch := evaluateCondition(mode, variable, needle, state)
				return workflow.NodeResult{
					Delta: workflow.ExecutionState{
						ConditionalResults: map[string]string{ctx.NodeID: branch},
					},
				}, nil
			}), nil
		},
	}
}

func evaluateCondition(mode, variable, needle string, state workflow.ExecutionState) string {
	switch mode {
	case "variable":
		v, ok := state.Variables[variable]
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	default: // "contains"
		text := lastUserMessage(state.Messages)
		if strings.Contains(strings.ToLower(text), strings.ToLower(needle)) {
			return "true"
		}
		return "false"
	}
}
