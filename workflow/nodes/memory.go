package nodes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/chatforge/workflow/workflow"
	"github.com/yuin/goldmark"
)

// memoryDescriptor registers the memory node: it compacts turns older than
// the configured window into ExecutionState.ConversationSummary. It never
// truncates ExecutionState.Messages itself — the reducer only ever appends
// to history — so the summary is kept in state alongside the verbatim
// turns. The model node sends only Messages and does not read the summary
// (spec.md §4.1).
func memoryDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeMemory,
		DisplayName: "Memory",
		Category:    "knowledge",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "window", Type: "number", Default: 10},
		},
		ReadFields:  []string{"messages"},
		WriteFields: []string{"conversationSummary"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			window := getInt(config, "window", 10)
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				return runMemory(state, window), nil
			}), nil
		},
	}
}

func runMemory(state workflow.ExecutionState, window int) workflow.NodeResult {
	if window <= 0 || len(state.Messages) <= window {
		return workflow.NodeResult{}
	}

	overflow := state.Messages[:len(state.Messages)-window]
	var md strings.Builder
	for _, m := range overflow {
		fmt.Fprintf(&md, "- **%s**: %s\n", m.Role, truncate(m.Content, 160))
	}

	summary, err := renderSummaryMarkdown(md.String())
	if err != nil {
		// Malformed markdown should never abort the run; fall back to the
		// raw bullet list rather than dropping the compaction entirely.
		summary = strings.TrimSpace(md.String())
	}

	return workflow.NodeResult{
		Delta: workflow.ExecutionState{ConversationSummary: summary},
	}
}

// renderSummaryMarkdown renders the compacted-turn bullet list to HTML so a
// workflow editor or the Control API's execution detail view can display it
// without re-implementing a Markdown renderer of its own.
func renderSummaryMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
