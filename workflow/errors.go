package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which branch of the error taxonomy a failure belongs to.
// Every pipeline stage and node invocation boundary wraps its failure into
// exactly one of these kinds before it reaches a caller.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFound"
	KindUnauthorized Kind = "Unauthorized"
	KindConfig     Kind = "ConfigError"
	KindLimit      Kind = "LimitError"
	KindProvider   Kind = "ProviderError"
	KindTool       Kind = "ToolError"
	KindTimeout    Kind = "TimeoutError"
	KindCancelled  Kind = "CancelledError"
	KindInternal   Kind = "InternalError"
)

// Error is the single typed error surfaced by every component in this
// package. It carries enough context for the Control API's error surface
// (kind, message, details, retryable) and for the error decorator to enrich
// it uniformly at every stage/node boundary.
type Error struct {
	Kind    Kind
	Message string

	// RunID and Stage/NodeID are filled in by Decorate, not by the
	// component that first raises the error.
	RunID   string
	Stage   string
	NodeID  string
	Elapsed time.Duration

	// Retryable is only meaningful for KindProvider; IsRetryable reports
	// it. The Executor does not retry, so a retryable error still fails
	// the run.
	Retryable bool

	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.NodeID != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.NodeID)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs an Error of the given kind. Use the kind-specific
// constructors (ValidationErrorf, NotFoundf, ...) where the message is
// simple; use NewError directly when Details must be attached.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ValidationErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func ConfigErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

func LimitErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindLimit, Message: fmt.Sprintf(format, args...)}
}

// ProviderErrorf constructs a KindProvider error; retryable sets the
// Retryable flag that IsRetryable reports. No component retries on it.
func ProviderErrorf(retryable bool, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf(format, args...), Retryable: retryable, Cause: cause}
}

func ToolErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTool, Message: fmt.Sprintf(format, args...)}
}

func TimeoutErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

func CancelledErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindCancelled, Message: fmt.Sprintf(format, args...)}
}

func InternalErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Decorate wraps any error raised inside a pipeline stage or node
// invocation into the canonical *Error shape, enriching it with runID,
// stage/node, and elapsed time. If err is already an *Error it is enriched
// in place (a copy) rather than double-wrapped. Errors that aren't already
// typed are classified KindInternal, since an untyped failure bubbling out
// of a stage is itself an invariant violation: every component that can
// fail for a known reason should already be raising a typed Error.
func Decorate(err error, runID, stage, nodeID string, elapsed time.Duration) *Error {
	if err == nil {
		return nil
	}

	var wfErr *Error
	if errors.As(err, &wfErr) {
		enriched := *wfErr
		enriched.RunID = runID
		if enriched.Stage == "" {
			enriched.Stage = stage
		}
		if enriched.NodeID == "" {
			enriched.NodeID = nodeID
		}
		enriched.Elapsed = elapsed
		return &enriched
	}

	return &Error{
		Kind:    KindInternal,
		Message: err.Error(),
		RunID:   runID,
		Stage:   stage,
		NodeID:  nodeID,
		Elapsed: elapsed,
		Cause:   err,
	}
}

// IsRetryable reports whether err is a KindProvider *Error with Retryable set.
func IsRetryable(err error) bool {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind == KindProvider && wfErr.Retryable
	}
	return false
}
