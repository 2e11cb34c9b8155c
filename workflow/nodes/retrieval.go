package nodes

import (
	"strings"

	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/workflow"
)

// retrievalDescriptor registers the retrieval node: it queries
// NodeContext.Retriever (bound by the Preparation Service through
// RetrieverFactory.For) with the most recent user message, filtered by the
// node's documentIds config, writes the results to
// ExecutionState.RetrievalContext, and appends their text as a system
// message so the next model call sees it (spec.md §4.1, §4.7 document
// ownership).
func retrievalDescriptor() *workflow.NodeTypeDescriptor {
	return &workflow.NodeTypeDescriptor{
		Type:        workflow.NodeRetrieval,
		DisplayName: "Retrieval",
		Category:    "knowledge",
		ConfigKeys: []workflow.ConfigKey{
			{Name: "topK", Type: "number", Default: 5},
			{Name: "documentIds", Type: "array"},
		},
		ReadFields:  []string{"messages"},
		WriteFields: []string{"retrievalContext"},
		Factory: func(config map[string]interface{}) (workflow.Node, error) {
			topK := getInt(config, "topK", 5)
			documentIDs := getStringSlice(config, "documentIds")
			return workflow.NodeFunc(func(ctx workflow.NodeContext, state workflow.ExecutionState) (workflow.NodeResult, error) {
				return runRetrieval(ctx, state, topK, documentIDs)
			}), nil
		},
	}
}

func runRetrieval(ctx workflow.NodeContext, state workflow.ExecutionState, topK int, documentIDs []string) (workflow.NodeResult, error) {
	if ctx.Retriever == nil {
		return workflow.NodeResult{}, workflow.ConfigErrorf("retrieval node %s: no retriever bound", ctx.NodeID)
	}

	query := lastUserMessage(state.Messages)
	chunks, err := ctx.Retriever.Query(ctx.Ctx, query, documentIDs)
	if err != nil {
		return workflow.NodeResult{}, workflow.ProviderErrorf(true, err, "retrieval query failed: %v", err)
	}

	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	delta := workflow.ExecutionState{RetrievalContext: chunks}
	if len(chunks) > 0 {
		var b strings.Builder
		b.WriteString("Relevant context:")
		for _, c := range chunks {
			b.WriteString("\n- ")
			b.WriteString(c.Text)
		}
		delta.Messages = []model.Message{{Role: model.RoleSystem, Content: b.String()}}
	}

	return workflow.NodeResult{Delta: delta}, nil
}

func lastUserMessage(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
