package nodes

import (
	"time"

	"github.com/chatforge/workflow/workflow"
)

// delayDescriptor registers the delay node: a context-cancellable pause,
// useful for rate-limiting a downstream call or giving a human-in-the-loop
// step a minimum wait before polling (spec.md §4.1).
func delayDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeDelay,
		DisplayName: "Delay",
		Category:    "control",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "durationMs", Type: "number", Required: true},
		},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			duration := time.Duration(getInt(config, "durationMs", 0)) * time.Millisecond
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				if duration <= 0 {
					return workflow.NodeResult{}, nil
				}
				timer := time.NewTimer(duration)
				defer timer.Stop()
				select {
				case <-ctx.Ctx.Done():
					return workflow.NodeResult{}, workflow.CancelledErrorf("delay node %s: %v", ctx.NodeID, ctx.Ctx.Err())
				case <-timer.C:
					return workflow.NodeResult{}, nil
				}
			}), nil
		},
	}
}
