package graph

import (
	"errors"
	"testing"
)

func TestEngineError(t *testing.T) {
	cause := errors.New("underlying")
	err := &EngineError{Message: "no route", Code: "NO_ROUTE", Cause: cause}

	if err.Error() != "no route" {
		t.Errorf("Error() = %q, want %q", err.Error(), "no route")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to cause")
	}
}

func TestSentinelErrors(t *testing.T) {
	if ErrMaxStepsExceeded == nil || ErrNoRoute == nil || ErrNodeNotFound == nil {
		t.Fatal("sentinel errors must be non-nil")
	}
	if ErrMaxStepsExceeded.Error() == ErrNoRoute.Error() {
		t.Error("sentinel errors must have distinct messages")
	}
}
