// Package model provides LLM chat provider adapters.
package model

import "context"

// ChatModel abstracts a single LLM provider's chat completion API so a
// model node can call any provider (OpenAI, Anthropic, Google) through one
// interface.
//
// Implementations must respect context cancellation and translate
// provider-specific failures (rate limits, auth, malformed requests) into
// an error the caller can inspect; package workflow wraps whatever Chat
// returns into a ProviderError with a Retryable flag.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in an LLM conversation.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolSpec describes a tool the model may call, in JSON Schema form.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is a single chat completion response.
type ChatOut struct {
	// Text is the model's generated text, empty if the turn was tool-calls only.
	Text string

	// ToolCalls are tools the model wants invoked before it continues.
	ToolCalls []ToolCall

	// Usage reports token consumption for this call, used by the cost
	// Aggregator. Zero value means the provider adapter could not report
	// usage for this call.
	Usage Usage

	// Model is the concrete model identifier the provider used to serve
	// this response (e.g. "gpt-4.1", "claude-3-7-sonnet-20250219"),
	// recorded alongside Usage for per-model cost attribution.
	Model string

	// FinishReason is the provider's reason the turn ended ("stop",
	// "tool_calls", "length", "content_filter"), when the provider reports one.
	FinishReason string
}

// Usage reports token counts for one chat completion call. Providers spell
// these fields differently on the wire (input_tokens/output_tokens vs.
// prompt_tokens/completion_tokens); adapters normalize to this shape.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns InputTokens + OutputTokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// StreamChunk is one piece of a streaming chat completion, forwarded to the
// caller as it arrives rather than buffered until the call completes.
type StreamChunk struct {
	TextDelta string
	ToolCall  *ToolCall
	Done      bool
	Usage     Usage
}

// StreamingChatModel is implemented by providers that can forward partial
// output as it's generated; package workflow's model node uses this when
// the caller requested a streaming execution, and falls back to ChatModel
// otherwise.
type StreamingChatModel interface {
	ChatModel
	ChatStream(ctx context.Context, messages []Message, tools []ToolSpec, onChunk func(StreamChunk)) (ChatOut, error)
}
