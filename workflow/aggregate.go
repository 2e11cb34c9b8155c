package workflow

import "github.com/chatforge/workflow/graph"

// Aggregator sums usage across every model-node UsageRecorded event in a
// run, deduplicating by event ID so a republished or retried event never
// double-counts (spec.md §4.4, §8 — "counting each model event's usage at
// most once"). It delegates cost computation to graph.CostTracker, the
// teacher's existing provider price table, rather than reimplementing
// pricing.
type Aggregator struct {
	tracker *graph.CostTracker

	seen         map[string]struct{}
	inputTokens  int
	outputTokens int
}

// NewAggregator creates an Aggregator backed by a fresh graph.CostTracker
// for the given run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		tracker: graph.NewCostTracker(runID, "USD"),
		seen:    make(map[string]struct{}),
	}
}

// Record folds one UsageRecorded lifecycle event's payload into the running
// total. Payload keys accept either spelling convention a provider adapter
// might use (spec.md §4.4): "inputTokens"/"outputTokens" or
// "prompt_tokens"/"completion_tokens".
func (a *Aggregator) Record(event LifecycleEvent) {
	if event.Kind != EventUsageRecorded {
		return
	}
	if _, dup := a.seen[event.ID]; dup {
		return
	}
	a.seen[event.ID] = struct{}{}

	in := intPayload(event.Payload, "inputTokens", "input_tokens", "prompt_tokens")
	out := intPayload(event.Payload, "outputTokens", "output_tokens", "completion_tokens")
	modelName, _ := event.Payload["model"].(string)

	a.inputTokens += in
	a.outputTokens += out
	if modelName != "" {
		_ = a.tracker.RecordLLMCall(modelName, in, out, event.NodeID)
	}
}

func intPayload(payload map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// InputTokens returns the running sum of input tokens across every
// deduplicated UsageRecorded event.
func (a *Aggregator) InputTokens() int { return a.inputTokens }

// OutputTokens returns the running sum of output tokens.
func (a *Aggregator) OutputTokens() int { return a.outputTokens }

// TokensUsed returns InputTokens() + OutputTokens(), the canonical total
// spec.md §4.4 requires WorkflowResult.tokensUsed to carry when no explicit
// total was reported by a provider.
func (a *Aggregator) TokensUsed() int { return a.inputTokens + a.outputTokens }

// Cost returns the cumulative cost across every recorded call, derived from
// the provider price table.
func (a *Aggregator) Cost() float64 { return a.tracker.GetTotalCost() }
