package nodes

import "github.com/chatforge/workflow/workflow"

// startDescriptor registers the start node: a pure pass-through that exists
// so every blueprint has exactly one well-defined entry point (spec.md
// §4.1). Its only config is the default system message the Preparation
// Service reads when the caller didn't supply one (workflow.installSystemMessage).
func startDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeStart,
		DisplayName: "Start",
		Category:    "control",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "systemMessage", Type: "string"},
		},
		WriteFields: nil,
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				return workflow.NodeResult{}, nil
			}), nil
		},
	}
}
