package workflow

// FrameType names one of the typed frames an executeStream sequence yields
// (spec.md §6).
type FrameType string

const (
	FrameStart FrameType = "start"
	FrameToken FrameType = "token"
	FrameTool  FrameType = "tool"
	FrameNode  FrameType = "node"
	FrameUsage FrameType = "usage"
	FrameDone  FrameType = "done"
	FrameError FrameType = "error"
)

// StreamFrame is one element of a streaming ExecuteWorkflow response. Only
// the fields relevant to Type are populated; the rest are zero.
type StreamFrame struct {
	Type FrameType `json:"type"`

	// start
	RunID string `json:"runId,omitempty"`

	// token
	Content string `json:"content,omitempty"`

	// tool
	ToolName string `json:"name,omitempty"`
	ToolOK   bool   `json:"ok,omitempty"`
	Summary  string `json:"summary,omitempty"`

	// node (behind a trace flag)
	NodeName  string `json:"nodeName,omitempty"`
	NodePhase string `json:"phase,omitempty"` // "start" | "end"

	// usage
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
	TotalTokens  int `json:"totalTokens,omitempty"`

	// done
	Result *WorkflowResult `json:"result,omitempty"`

	// error (terminal alternative to done)
	ErrorKind    Kind   `json:"kind,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

func startFrame(runID string) StreamFrame {
	return StreamFrame{Type: FrameStart, RunID: runID}
}

func tokenFrame(content string) StreamFrame {
	return StreamFrame{Type: FrameToken, Content: content}
}

func toolFrame(name string, ok bool, summary string) StreamFrame {
	return StreamFrame{Type: FrameTool, ToolName: name, ToolOK: ok, Summary: summary}
}

func nodeFrame(name, phase string) StreamFrame {
	return StreamFrame{Type: FrameNode, NodeName: name, NodePhase: phase}
}

func usageFrame(in, out int) StreamFrame {
	return StreamFrame{Type: FrameUsage, InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

func doneFrame(result WorkflowResult) StreamFrame {
	return StreamFrame{Type: FrameDone, Result: &result}
}

func errorFrame(err error) StreamFrame {
	wfErr := Decorate(err, "", "", "", 0)
	return StreamFrame{Type: FrameError, ErrorKind: wfErr.Kind, ErrorMessage: wfErr.Message}
}
