package workflow

import (
	"context"

	"github.com/chatforge/workflow/graph/model"
)

// MessageStore persists conversation messages. Out of scope per spec.md §1
// ("the conversation/message persistence store" is an external
// collaborator); package workflow depends only on this port.
type MessageStore interface {
	Append(ctx context.Context, conversationID, role, content string) error
}

// ConversationAggregateDelta is what the Result Processor folds into a
// conversation's running aggregates after a run completes.
type ConversationAggregateDelta struct {
	MessageCount int
	TokensUsed   int
}

// ConversationStore updates and reads conversation-level aggregates.
type ConversationStore interface {
	UpdateAggregates(ctx context.Context, conversationID string, delta ConversationAggregateDelta) (ConversationSummary, error)
}

// ExecutionStore creates and updates persisted WorkflowExecution rows. The
// Executor never calls this directly — only subscribers.PersistenceUpdater
// does, driven by lifecycle events (spec.md §4.5's "executor has no direct
// knowledge of any subscriber").
type ExecutionStore interface {
	Create(ctx context.Context, exec WorkflowExecution) error
	Update(ctx context.Context, exec WorkflowExecution) error
	Get(ctx context.Context, id string) (WorkflowExecution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]WorkflowExecution, error)
}

// ExecutionFilter narrows ListExecutions results.
type ExecutionFilter struct {
	UserID string
	Status ExecutionStatus
	Limit  int
}

// ResultProcessor extracts the final assistant message from a run's
// terminal state, persists it, updates conversation aggregates, and builds
// the canonical WorkflowResult (spec.md §4.4's Result Processor).
type ResultProcessor struct {
	Messages      MessageStore
	Conversations ConversationStore
}

// Process builds a WorkflowResult from a run's terminal ExecutionState and
// the Aggregator's totals, persisting the assistant message and conversation
// aggregates as a side effect.
func (rp *ResultProcessor) Process(ctx context.Context, conversationID string, state ExecutionState, agg *Aggregator, elapsed int64) (WorkflowResult, error) {
	assistantText := lastAssistantMessage(state)

	if rp.Messages != nil && conversationID != "" {
		if err := rp.Messages.Append(ctx, conversationID, "assistant", assistantText); err != nil {
			return WorkflowResult{}, InternalErrorf("persist assistant message: %v", err)
		}
	}

	var conversation ConversationSummary
	if rp.Conversations != nil && conversationID != "" {
		summary, err := rp.Conversations.UpdateAggregates(ctx, conversationID, ConversationAggregateDelta{
			MessageCount: 1,
			TokensUsed:   agg.TokensUsed(),
		})
		if err != nil {
			return WorkflowResult{}, InternalErrorf("update conversation aggregates: %v", err)
		}
		conversation = summary
	} else {
		conversation = ConversationSummary{ID: conversationID}
	}

	return WorkflowResult{
		AssistantMessage: assistantText,
		Conversation:     conversation,
		ExecutionTimeMs:  elapsed,
		TokensUsed:       agg.TokensUsed(),
		PromptTokens:     agg.InputTokens(),
		CompletionTokens: agg.OutputTokens(),
		Cost:             agg.Cost(),
	}, nil
}

// lastAssistantMessage scans state.Messages backward for the most recent
// assistant turn. A run that never reaches a model node (e.g. a validation
// failure short-circuited before RunGraph) yields an empty string.
func lastAssistantMessage(state ExecutionState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == model.RoleAssistant {
			return state.Messages[i].Content
		}
	}
	return ""
}
