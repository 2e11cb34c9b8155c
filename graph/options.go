package graph

import "time"

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.New(reducer, store, emitter,
//	    graph.WithMaxSteps(100),
//	    graph.WithDefaultNodeTimeout(10*time.Second),
//	)
//
// Options may be mixed with a plain Options struct; functional options
// applied afterward win.
type Option func(*engineConfig) error

// engineConfig collects options before they're applied to an Engine,
// allowing validation before any field is committed.
type engineConfig struct {
	opts Options
}

// Options configures engine-wide defaults. See the With* functions for the
// functional-option equivalents.
type Options struct {
	// MaxSteps limits total node visits in a run, guarding against
	// infinite loops when a loop node's bound or a conditional exit is
	// misconfigured. Zero means unlimited (not recommended in production).
	MaxSteps int

	// DefaultNodeTimeout is the per-node execution timeout used when a
	// node has no NodePolicy.Timeout of its own. Zero means unlimited.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget is the deadline for the entire run. Zero means
	// unlimited; package workflow always sets this from
	// WorkflowConfig-derived limits.
	RunWallClockBudget time.Duration

	// Metrics, if non-nil, receives the engine's Prometheus observations:
	// the active-runs gauge while Run executes and the retries counter
	// when a node is retried. The engine records no step latency itself.
	Metrics *PrometheusMetrics

	// CostTracker, if non-nil, is kept on the engine; the engine itself
	// records no usage into it. package workflow uses its own Aggregator
	// instead and leaves this nil.
	CostTracker *CostTracker

	// Policies maps node ID to its NodePolicy (timeout/retry overrides).
	Policies map[string]NodePolicy
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// Recommended values:
//   - Simple workflows (3-5 nodes): 20
//   - Workflows with loops: depth × max_iterations
//   - Complex multi-loop workflows: 100-200
//
// When exceeded, Run returns an *EngineError with Code "MAX_STEPS_EXCEEDED".
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the execution timeout applied to nodes that
// don't declare their own NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the deadline for an entire Run call. When
// exceeded, all in-flight work observes context cancellation and Run
// returns a timeout error.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection for every run on this
// engine: the active-runs gauge and the retries counter. Step latency is
// recorded by subscribers.MetricsCollector, not by the engine.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithCostTracker attaches a CostTracker to the engine, independent of
// package workflow's own Aggregator. The engine does not record model
// usage into it; callers record calls with CostTracker.RecordLLMCall.
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CostTracker = tracker
		return nil
	}
}

// WithNodePolicy attaches a NodePolicy (timeout/retry overrides) to a
// specific node ID.
func WithNodePolicy(nodeID string, policy NodePolicy) Option {
	return func(cfg *engineConfig) error {
		if cfg.opts.Policies == nil {
			cfg.opts.Policies = make(map[string]NodePolicy)
		}
		cfg.opts.Policies[nodeID] = policy
		return nil
	}
}

// resolveOptions applies a mix of Options values and Option functions in
// order, later entries overriding earlier ones field-by-field (Option
// functions always apply after any plain Options value, since New applies
// them in the order given).
func resolveOptions(mixed ...interface{}) (Options, error) {
	cfg := &engineConfig{}
	for _, m := range mixed {
		switch v := m.(type) {
		case Options:
			merged := cfg.opts
			if v.MaxSteps != 0 {
				merged.MaxSteps = v.MaxSteps
			}
			if v.DefaultNodeTimeout != 0 {
				merged.DefaultNodeTimeout = v.DefaultNodeTimeout
			}
			if v.RunWallClockBudget != 0 {
				merged.RunWallClockBudget = v.RunWallClockBudget
			}
			if v.Metrics != nil {
				merged.Metrics = v.Metrics
			}
			if v.CostTracker != nil {
				merged.CostTracker = v.CostTracker
			}
			if v.Policies != nil {
				merged.Policies = v.Policies
			}
			cfg.opts = merged
		case Option:
			if err := v(cfg); err != nil {
				return Options{}, err
			}
		default:
			return Options{}, &EngineError{
				Message: "unsupported option type passed to New",
				Code:    "INVALID_OPTION",
			}
		}
	}
	return cfg.opts, nil
}
