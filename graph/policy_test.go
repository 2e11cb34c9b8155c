package graph

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"valid with delays", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}, false},
		{"zero attempts invalid", RetryPolicy{MaxAttempts: 0}, true},
		{"negative attempts invalid", RetryPolicy{MaxAttempts: -1}, true},
		{"max delay below base delay invalid", RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
			}
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("zero base delay means no wait", func(t *testing.T) {
		if d := computeBackoff(0, 0, 0, rng); d != 0 {
			t.Errorf("computeBackoff with zero base = %v, want 0", d)
		}
	})

	t.Run("grows exponentially up to the cap", func(t *testing.T) {
		base := time.Second
		maxDelay := 5 * time.Second

		d0 := computeBackoff(0, base, maxDelay, rng)
		d3 := computeBackoff(3, base, maxDelay, rng)

		if d0 < base || d0 >= base+base {
			t.Errorf("attempt 0 delay %v out of expected [base, 2*base) range", d0)
		}
		if d3 < maxDelay {
			t.Errorf("attempt 3 delay %v should be at least the cap %v", d3, maxDelay)
		}
	})

	t.Run("same rng seed reproduces the same sequence", func(t *testing.T) {
		rngA := rand.New(rand.NewSource(42))
		rngB := rand.New(rand.NewSource(42))

		for attempt := 0; attempt < 5; attempt++ {
			a := computeBackoff(attempt, time.Second, 30*time.Second, rngA)
			b := computeBackoff(attempt, time.Second, 30*time.Second, rngB)
			if a != b {
				t.Fatalf("attempt %d: deterministic RNGs diverged: %v != %v", attempt, a, b)
			}
		}
	})
}
