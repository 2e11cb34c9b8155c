package graph

import (
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when the policy's
// fields are internally inconsistent (e.g. MaxAttempts < 1).
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// NodePolicy configures the execution behavior for a single node: its
// timeout and its retry strategy. If not specified, Options' engine-wide
// defaults apply.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node. If
	// zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// RetryPolicy governs automatic retries on transient failure. Only
	// consulted when the failing error satisfies Retryable; in package
	// workflow this is wired to ProviderError{Retryable: true} per the
	// taxonomy's propagation policy.
	RetryPolicy *RetryPolicy
}

// RetryPolicy configures exponential-backoff retry for a node.
//
// When a node fails, the policy decides whether the error is retryable and
// how long to wait before the next attempt. Exponential backoff with jitter
// avoids synchronized retry storms across concurrently running workflows.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including
	// the first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the backoff delay.
	MaxDelay time.Duration

	// Retryable decides whether a given error should trigger a retry. If
	// nil, no errors are retried regardless of MaxAttempts.
	Retryable func(error) bool
}

// Validate reports whether the RetryPolicy's fields are internally
// consistent.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff computes the delay before the given zero-based retry
// attempt, using exponential backoff capped at maxDelay plus jitter in
// [0, base) to prevent thundering-herd retries across concurrent runs.
//
// Example delays with base=1s, maxDelay=30s:
//
//	attempt 0: 1s  + jitter(0,1s)
//	attempt 1: 2s  + jitter(0,1s)
//	attempt 2: 4s  + jitter(0,1s)
//	attempt 5: 30s + jitter(0,1s)  (capped)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter, not security-sensitive
	}

	return exponentialDelay + jitter
}
