package nodes

import "github.com/chatforge/workflow/workflow"

// variableDescriptor registers the variable node: it assigns literal or
// derived values into ExecutionState.Variables, the shared scratch space
// conditional and loop nodes read back (spec.md §4.1). The special value
// "$lastMessage" is substituted with the most recent user message so a
// blueprint can capture user input into a named variable without a model
// call.
func variableDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeVariable,
		DisplayName: "Variable",
		Category:    "control",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "assignments", Type: "object"},
		},
		ReadFields:  []string{"messages"},
		WriteFields: []string{"variables"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			assignments, _ := config["assignments"].(map[string]interface{})
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				return runVariable(state, assignments), nil
			}), nil
		},
	}
}

func runVariable(state workflow.ExecutionState, assignments map[string]interface{}) workflow.NodeResult {
	if len(assignments) == 0 {
		return workflow.NodeResult{}
	}

	resolved := make(map[string]interface{}, len(assignments))
	for name, v := range assignments {
		if s, ok := v.(string); ok && s == "$lastMessage" {
			resolved[name] = lastUserMessage(state.Messages)
			continue
		}
		resolved[name] = v
	}

	return workflow.NodeResult{Delta: workflow.ExecutionState{Variables: resolved}}
}
