package graph

import (
	"testing"
	"time"
)

func TestResolveOptions_FunctionalOptions(t *testing.T) {
	opts, err := resolveOptions(
		WithMaxSteps(50),
		WithDefaultNodeTimeout(2*time.Second),
		WithRunWallClockBudget(time.Minute),
	)
	if err != nil {
		t.Fatalf("resolveOptions returned error: %v", err)
	}
	if opts.MaxSteps != 50 {
		t.Errorf("MaxSteps = %d, want 50", opts.MaxSteps)
	}
	if opts.DefaultNodeTimeout != 2*time.Second {
		t.Errorf("DefaultNodeTimeout = %v, want 2s", opts.DefaultNodeTimeout)
	}
	if opts.RunWallClockBudget != time.Minute {
		t.Errorf("RunWallClockBudget = %v, want 1m", opts.RunWallClockBudget)
	}
}

func TestResolveOptions_StructThenFunctionalOverrides(t *testing.T) {
	base := Options{MaxSteps: 10, DefaultNodeTimeout: time.Second}

	opts, err := resolveOptions(base, WithMaxSteps(99))
	if err != nil {
		t.Fatalf("resolveOptions returned error: %v", err)
	}
	if opts.MaxSteps != 99 {
		t.Errorf("MaxSteps = %d, want the functional override 99", opts.MaxSteps)
	}
	if opts.DefaultNodeTimeout != time.Second {
		t.Errorf("DefaultNodeTimeout = %v, want inherited 1s from the struct", opts.DefaultNodeTimeout)
	}
}

func TestResolveOptions_NodePolicy(t *testing.T) {
	policy := NodePolicy{Timeout: 5 * time.Second}
	opts, err := resolveOptions(WithNodePolicy("fetch", policy))
	if err != nil {
		t.Fatalf("resolveOptions returned error: %v", err)
	}
	if got := opts.Policies["fetch"]; got.Timeout != 5*time.Second {
		t.Errorf("Policies[\"fetch\"].Timeout = %v, want 5s", got.Timeout)
	}
}

func TestResolveOptions_RejectsUnknownType(t *testing.T) {
	_, err := resolveOptions("not an option")
	if err == nil {
		t.Fatal("expected error for unsupported option type")
	}
}
