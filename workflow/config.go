package workflow

import (
	"strconv"
	"time"
)

// WorkflowConfig is the set of execution parameters bound to a run,
// independent of which WorkflowSource produced the blueprint.
type WorkflowConfig struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	EnableTools     bool `json:"enableTools" yaml:"enableTools"`
	EnableRetrieval bool `json:"enableRetrieval" yaml:"enableRetrieval"`
	EnableMemory    bool `json:"enableMemory" yaml:"enableMemory"`

	MemoryWindow int `json:"memoryWindow" yaml:"memoryWindow"`
	MaxToolCalls int `json:"maxToolCalls" yaml:"maxToolCalls"`

	SystemMessage string   `json:"systemMessage,omitempty" yaml:"systemMessage,omitempty"`
	AllowedTools  []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`
	DocumentIDs   []string `json:"documentIds,omitempty" yaml:"documentIds,omitempty"`
}

// Shape returns a value stable across calls for equal configs, used as the
// "boundConfigShape" half of the blueprint compilation cache key (spec.md
// §9). It intentionally excludes SystemMessage/DocumentIDs/AllowedTools
// content, since those bind collaborators at prepare-time but don't change
// which graph shape gets compiled.
func (c WorkflowConfig) Shape() string {
	return strconv.Itoa(c.MaxToolCalls) + "|" + strconv.Itoa(c.MemoryWindow) + "|" +
		boolTag(c.EnableTools) + boolTag(c.EnableRetrieval) + boolTag(c.EnableMemory)
}

func boolTag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ExecutionMode selects unary vs. token-streaming execution; both traverse
// the identical pipeline and differ only in whether model-node token
// callbacks are forwarded live or buffered (spec.md §4.4).
type ExecutionMode string

const (
	ModeUnary  ExecutionMode = "unary"
	ModeStream ExecutionMode = "stream"
)

// WorkflowInput is the Control API's ExecuteWorkflow argument.
type WorkflowInput struct {
	UserID         string                 `json:"userId"`
	Message        string                 `json:"message"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Source         WorkflowSource         `json:"source"`
	Config         WorkflowConfig         `json:"config"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowResult is the canonical output of a run. Every consumer-facing
// response is built from this struct via one of the to*Response methods
// below — spec.md §3: "No other path may build a response."
type WorkflowResult struct {
	AssistantMessage string                 `json:"assistantMessage"`
	Conversation     ConversationSummary    `json:"conversation"`
	ExecutionTimeMs  int64                  `json:"executionTimeMs"`
	TokensUsed       int                    `json:"tokensUsed"`
	PromptTokens     int                    `json:"promptTokens"`
	CompletionTokens int                    `json:"completionTokens"`
	Cost             float64                `json:"cost"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ConversationSummary is the updated conversation aggregate folded into a
// WorkflowResult by the Result Processor.
type ConversationSummary struct {
	ID            string    `json:"id"`
	MessageCount  int       `json:"messageCount"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	CumulativeUse int       `json:"cumulativeTokens"`
}

// ChatResponse is the minimal shape a chat UI needs.
type ChatResponse struct {
	AssistantText  string `json:"assistantText"`
	ConversationID string `json:"conversationId"`
}

// ToChatResponse projects a WorkflowResult to the minimal chat shape.
// Round-trip law (spec.md §8): toChatResponse(r).assistantText ==
// r.assistantMessage for all r.
func (r WorkflowResult) ToChatResponse() ChatResponse {
	return ChatResponse{
		AssistantText:  r.AssistantMessage,
		ConversationID: r.Conversation.ID,
	}
}

// ExecutionResponse is the shape for execution-status consumers (usage/cost
// focused, no full conversation aggregate).
type ExecutionResponse struct {
	AssistantText string  `json:"assistantText"`
	TokensUsed    int     `json:"tokensUsed"`
	Cost          float64 `json:"cost"`
	ExecutionMs   int64   `json:"executionTimeMs"`
}

func (r WorkflowResult) ToExecutionResponse() ExecutionResponse {
	return ExecutionResponse{
		AssistantText: r.AssistantMessage,
		TokensUsed:    r.TokensUsed,
		Cost:          r.Cost,
		ExecutionMs:   r.ExecutionTimeMs,
	}
}

// DetailedResponse is the full shape for the Control API's execution-detail
// surface, including per-call token breakdown and arbitrary metadata.
type DetailedResponse struct {
	AssistantText    string                 `json:"assistantText"`
	Conversation     ConversationSummary    `json:"conversation"`
	PromptTokens     int                    `json:"promptTokens"`
	CompletionTokens int                    `json:"completionTokens"`
	TokensUsed       int                    `json:"tokensUsed"`
	Cost             float64                `json:"cost"`
	ExecutionMs      int64                  `json:"executionTimeMs"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (r WorkflowResult) ToDetailedResponse() DetailedResponse {
	return DetailedResponse{
		AssistantText:    r.AssistantMessage,
		Conversation:     r.Conversation,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TokensUsed:       r.TokensUsed,
		Cost:             r.Cost,
		ExecutionMs:      r.ExecutionTimeMs,
		Metadata:         r.Metadata,
	}
}

// ExecutionStatus is WorkflowExecution's lifecycle state.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// WorkflowExecution is the persisted run record. It is created at start and
// updated only by Event Bus subscribers (spec.md §3) — the Executor itself
// never writes to the ExecutionStore directly.
type WorkflowExecution struct {
	ID           string          `json:"id"`
	BlueprintRef string          `json:"blueprintRef,omitempty"`
	UserID       string          `json:"userId"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	Tokens       int             `json:"tokens"`
	Cost         float64         `json:"cost"`
	Error        *ExecutionError `json:"error,omitempty"`
}

// ExecutionError is the error surface recorded on a failed/cancelled
// WorkflowExecution, matching the {kind, message, details?, retryable?}
// shape from spec.md §6.
type ExecutionError struct {
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

// ErrorFromErr builds an ExecutionError from any error, unwrapping a
// *workflow.Error when present.
func ErrorFromErr(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	wfErr := Decorate(err, "", "", "", 0)
	return &ExecutionError{
		Kind:      wfErr.Kind,
		Message:   wfErr.Message,
		Details:   wfErr.Details,
		Retryable: wfErr.Retryable,
	}
}
