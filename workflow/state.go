package workflow

import "github.com/chatforge/workflow/graph/model"

// ExecutionState is the state threaded through the graph engine for one
// workflow run. Most fields are optional and left at their zero value until
// a node first needs them — a run that never hits a retrieval or loop node
// carries no retrieval/loop bookkeeping at all, keeping reducer deltas small
// and the event log free of noise for nodes that were never visited.
type ExecutionState struct {
	// Messages is the running conversation, including the system message
	// installed by the Preparation Service and every assistant/tool turn
	// produced so far.
	Messages []model.Message

	// PendingToolCalls holds the tool calls requested by the most recent
	// assistant message, written by the model node and consumed (then
	// cleared) by the following tool node. model.Message doesn't retain
	// structured tool-call data once flattened into conversation history,
	// so this is the side channel between the two node types.
	PendingToolCalls []model.ToolCall

	// RetrievalContext holds the chunks returned by the most recent
	// retrieval node, nil until a retrieval node runs.
	RetrievalContext []RetrievedChunk

	// ConversationSummary is set by a memory node once it compacts older
	// turns out of Messages; empty until compaction first runs.
	ConversationSummary string

	// ToolCallCount is the running total of tool invocations across the
	// whole run, checked against WorkflowConfig.MaxToolCalls before every
	// tool node dispatch.
	ToolCallCount int

	// Variables holds named values written by variable nodes and read by
	// conditional/template expansion; nil until the first variable node runs.
	Variables map[string]interface{}

	// LoopState maps a loop node's ID to its iteration bookkeeping; nil
	// until the first loop node runs.
	LoopState map[string]LoopFrame

	// ConditionalResults records which branch a conditional node took, by
	// node ID, for the result trace and for tests asserting branch coverage.
	ConditionalResults map[string]string

	// ErrorState is set by the Executor, from the failing node's error,
	// before it resumes the run at an error-handler node; nothing clears it
	// afterwards.
	ErrorState *ErrorState

	// ExecutionHistory accumulates, in order, the entries nodes append to
	// it; of the built-in node types only the error-handler node writes one.
	ExecutionHistory []HistoryEntry

	// UsageMetadata is the most recent model call's token usage, overwritten
	// (not accumulated) on every model node visit — spec.md §3 and §4.1 are
	// explicit that this field reflects the last call, not a running total.
	// Run-wide totals live on the Aggregator, which dedups by event ID and
	// sums independently of this field.
	UsageMetadata *UsageMetadata
}

// RetrievedChunk is one document chunk returned by a retrieval node.
type RetrievedChunk struct {
	DocumentID string
	Text       string
	Score      float64
	Metadata   map[string]interface{}
}

// LoopFrame is one loop node's iteration bookkeeping.
type LoopFrame struct {
	Iterations int
	Bound      int
}

// ErrorState captures the failure a predecessor node produced, for an
// error-handler node to inspect and route on.
type ErrorState struct {
	NodeID  string
	Kind    Kind
	Message string
}

// HistoryEntry is one entry recorded in ExecutionState.ExecutionHistory.
type HistoryEntry struct {
	NodeID   string
	NodeType string
	Step     int
	Error    string
}

// UsageMetadata is the token usage of the most recent model call; the
// model node sets InputTokens and OutputTokens only.
type UsageMetadata struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	CostUSD      float64
}

// TotalTokens returns InputTokens + OutputTokens.
func (u UsageMetadata) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ReduceState is the Reducer[ExecutionState] passed to graph.New. Node
// deltas only set the fields they touched (everything else is left at zero
// value by the node), so the reducer's job is "take the delta's value where
// the node produced one, otherwise keep the accumulated one" — replace for
// singular fields, append for history, add for running counters.
func ReduceState(prev, delta ExecutionState) ExecutionState {
	next := prev

	if delta.Messages != nil {
		next.Messages = append(append([]model.Message{}, prev.Messages...), delta.Messages...)
	}
	if delta.PendingToolCalls != nil {
		next.PendingToolCalls = delta.PendingToolCalls
	}
	if delta.RetrievalContext != nil {
		next.RetrievalContext = delta.RetrievalContext
	}
	if delta.ConversationSummary != "" {
		next.ConversationSummary = delta.ConversationSummary
	}
	if delta.ToolCallCount != 0 {
		next.ToolCallCount = prev.ToolCallCount + delta.ToolCallCount
	}
	if delta.Variables != nil {
		merged := make(map[string]interface{}, len(prev.Variables)+len(delta.Variables))
		for k, v := range prev.Variables {
			merged[k] = v
		}
		for k, v := range delta.Variables {
			merged[k] = v
		}
		next.Variables = merged
	}
	if delta.LoopState != nil {
		merged := make(map[string]LoopFrame, len(prev.LoopState)+len(delta.LoopState))
		for k, v := range prev.LoopState {
			merged[k] = v
		}
		for k, v := range delta.LoopState {
			merged[k] = v
		}
		next.LoopState = merged
	}
	if delta.ConditionalResults != nil {
		merged := make(map[string]string, len(prev.ConditionalResults)+len(delta.ConditionalResults))
		for k, v := range prev.ConditionalResults {
			merged[k] = v
		}
		for k, v := range delta.ConditionalResults {
			merged[k] = v
		}
		next.ConditionalResults = merged
	}
	if delta.ErrorState != nil {
		next.ErrorState = delta.ErrorState
	}
	if delta.ExecutionHistory != nil {
		next.ExecutionHistory = append(append([]HistoryEntry{}, prev.ExecutionHistory...), delta.ExecutionHistory...)
	}
	if delta.UsageMetadata != nil {
		next.UsageMetadata = delta.UsageMetadata
	}

	return next
}
