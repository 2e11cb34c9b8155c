package nodes

import "github.com/chatforge/workflow/workflow"

// errorHandlerDescriptor registers the error-handler node: when a node
// fails, the Executor resumes the run here if this is that node's nearest
// downstream error-handler (computed at compile time by the Graph
// Builder) (spec.md §7). It
// records the failure into ExecutionHistory and otherwise behaves like a
// normal node, routing onward via its own outgoing edge.
func errorHandlerDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeErrorHandler,
		DisplayName: "Error Handler",
		Category:    "control",
		ConfigKeys:  []workflow.ConfigKey{},
		ReadFields:  []string{"errorState"},
		WriteFields: []string{"executionHistory"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				entry := workflow.HistoryEntry{NodeID: ctx.NodeID, NodeType: string(workflow.NodeErrorHandler), Step: ctx.Step}
				if state.ErrorState != nil {
					entry.Error = state.ErrorState.Message
				}
				return workflow.NodeResult{
					Delta: workflow.ExecutionState{ExecutionHistory: []workflow.HistoryEntry{entry}},
				}, nil
			}), nil
		},
	}
}
