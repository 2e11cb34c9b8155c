package workflow

import "context"

// API is the Control API spec.md §4 describes: the single surface a caller
// (HTTP handler, CLI, another service) uses to run workflows, inspect their
// shape, and look up past executions. It owns no state of its own beyond
// its collaborators.
type API struct {
	Executor   *Executor
	Validator  *Validator
	Registry   *Registry
	Executions ExecutionStore
}

// NewAPI wires a Control API from its collaborators.
func NewAPI(executor *Executor, validator *Validator, registry *Registry, executions ExecutionStore) *API {
	return &API{Executor: executor, Validator: validator, Registry: registry, Executions: executions}
}

// ExecuteWorkflow runs input to completion, choosing unary or streaming
// execution by mode. Streaming callers receive the channel immediately and
// must drain it to completion; the final frame is always `done` or `error`.
func (a *API) ExecuteWorkflow(ctx context.Context, input WorkflowInput, mode ExecutionMode) (WorkflowResult, <-chan StreamFrame, error) {
	if mode == ModeStream {
		return WorkflowResult{}, a.Executor.ExecuteStream(ctx, input), nil
	}
	result, err := a.Executor.Execute(ctx, input)
	return result, nil, err
}

// ValidateWorkflow runs every structural and semantic check against b
// without compiling or executing it.
func (a *API) ValidateWorkflow(b *WorkflowBlueprint) ValidationReport {
	return a.Validator.Validate(b)
}

// ListNodeTypes returns the full node-type catalog for a workflow editor's
// palette (spec.md §4.1).
func (a *API) ListNodeTypes() []*NodeTypeDescriptor {
	return a.Registry.List()
}

// GetExecution fetches one execution record by id.
func (a *API) GetExecution(ctx context.Context, id string) (WorkflowExecution, error) {
	exec, err := a.Executions.Get(ctx, id)
	if err != nil {
		return WorkflowExecution{}, NotFoundf("execution %s: %v", id, err)
	}
	return exec, nil
}

// ListExecutions lists executions matching filter.
func (a *API) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]WorkflowExecution, error) {
	return a.Executions.List(ctx, filter)
}
