package nodes

import "github.com/chatforge/workflow/workflow"

// loopDescriptor registers the loop node: it tracks its own iteration count
// in ExecutionState.LoopState and writes "body" or "exit" to
// ConditionalResults[nodeId] to drive which outgoing edge the Graph
// Builder's edgePredicate takes. A blueprint author declares the back-edge
// with condition "body" and the exit edge with condition "exit"; the
// validator's cycle check only tolerates the back-edge because this node is
// NodeLoop-typed (spec.md §4.1, §8 "loop bound").
func loopDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeLoop,
		DisplayName: "Loop",
		Category:    "control",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "maxIterations", Type: "number", Default: 10},
			{Name: "exitVariable", Type: "string"},
		},
		ReadFields:  []string{"variables", "loopState"},
		WriteFields: []string{"loopState", "conditionalResults"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			maxIterations := getInt(config, "maxIterations", 10)
			exitVariable := getString(config, "exitVariable", "")
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				return runLoop(ctx, state, maxIterations, exitVariable)
			}), nil
		},
	}
}

func runLoop(ctx workflow.NodeContext, state workflow.ExecutionState, maxIterations int, exitVariable string) (workflow.NodeResult, error) {
	frame := state.LoopState[ctx.NodeID]
	frame.Bound = maxIterations
	frame.Iterations++

	if frame.Iterations > maxIterations {
		return workflow.NodeResult{}, workflow.LimitErrorf(
			"loop node %s exceeded its bound of %d iterations", ctx.NodeID, maxIterations)
	}

	branch := "body"
	if exitVariable != "" {
		if v, ok := state.Variables[exitVariable]; ok {
			if exit, ok := v.(bool); ok && exit {
				branch = "exit"
			}
		}
	}
	if frame.Iterations >= maxIterations {
		branch = "exit"
	}

	return workflow.NodeResult{
		Delta: workflow.ExecutionState{
			LoopState:          map[string]workflow.LoopFrame{ctx.NodeID: frame},
			ConditionalResults: map[string]string{ctx.NodeID: branch},
		},
	}, nil
}
