package nodes

import (
	"strings"
	"testing"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/workflow"
)

func TestRunMemory_BelowWindowIsNoOp(t *testing.T) {
	state := workflow.ExecutionState{Messages: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
	}}
	result := runMemory(state, 10)
	if result.Delta.ConversationSummary != "" {
		t.Fatalf("ConversationSummary = %q, want empty when under the window", result.Delta.ConversationSummary)
	}
}

func TestRunMemory_CompactsOverflowIntoMarkdownRenderedSummary(t *testing.T) {
	state := workflow.ExecutionState{Messages: []model.Message{
		{Role: model.RoleUser, Content: "first turn"},
		{Role: model.RoleAssistant, Content: "first reply"},
		{Role: model.RoleUser, Content: "second turn"},
	}}

	result := runMemory(state, 1)

	if result.Delta.ConversationSummary == "" {
		t.Fatalf("expected a non-empty compacted summary")
	}
	// goldmark renders a Markdown bullet list ("- **role**: text") to an
	// HTML unordered list.
	if !strings.Contains(result.Delta.ConversationSummary, "<li>") {
		t.Fatalf("ConversationSummary = %q, want rendered HTML list markup", result.Delta.ConversationSummary)
	}
	if !strings.Contains(result.Delta.ConversationSummary, "first turn") {
		t.Fatalf("ConversationSummary = %q, want it to mention the compacted turn", result.Delta.ConversationSummary)
	}
}

func TestRunMemory_NeverTruncatesMessagesItself(t *testing.T) {
	state := workflow.ExecutionState{Messages: []model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
	}}
	result := runMemory(state, 1)
	if result.Delta.Messages != nil {
		t.Fatalf("memory node must never set a Messages delta, got %+v", result.Delta.Messages)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q, want unchanged short string", got)
	}
	if got := truncate("this is a long string", 7); got != "this is..." {
		t.Errorf("truncate() = %q, want truncated with ellipsis", got)
	}
}
