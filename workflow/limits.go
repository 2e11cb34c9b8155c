package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitsConfig is the set of quotas enforced before and during a run
// (spec.md §4.7).
type LimitsConfig struct {
	MaxConcurrentPerUser int
	MaxTokensPerUserDay  int
	MaxStepsPerWorkflow  int
	MaxBlueprintNodes    int
	RunWallClockDeadline time.Duration
}

// DefaultLimitsConfig mirrors conservative production defaults; callers
// load overrides from config/config.go.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxConcurrentPerUser: 4,
		MaxTokensPerUserDay:  2_000_000,
		MaxStepsPerWorkflow:  200,
		MaxBlueprintNodes:    100,
		RunWallClockDeadline: 5 * time.Minute,
	}
}

// Limiter enforces LimitsConfig before and during execution. Per-user
// concurrency and daily token counters are kept in Redis so the cap holds
// across process replicas; when rdb is nil, an in-process fallback is used
// (adequate for tests and single-process deployments, not for a multi-node
// rollout).
type Limiter struct {
	cfg LimitsConfig
	rdb *redis.Client

	mu       sync.Mutex
	inflight map[string]int
	dailyUse map[string]int
}

// NewLimiter constructs a Limiter. rdb may be nil.
func NewLimiter(cfg LimitsConfig, rdb *redis.Client) *Limiter {
	return &Limiter{
		cfg:      cfg,
		rdb:      rdb,
		inflight: make(map[string]int),
		dailyUse: make(map[string]int),
	}
}

// CheckBlueprintSize rejects oversized blueprints before preparation even
// starts (spec.md §4.7 — "maximum blueprint size").
func (l *Limiter) CheckBlueprintSize(b *WorkflowBlueprint) error {
	if len(b.Nodes) > l.cfg.MaxBlueprintNodes {
		return LimitErrorf("blueprint has %d nodes, exceeds limit of %d", len(b.Nodes), l.cfg.MaxBlueprintNodes)
	}
	return nil
}

// AcquireSlot reserves one of userID's concurrent-execution slots, returning
// a release function the caller must invoke (via defer) when the run ends.
func (l *Limiter) AcquireSlot(ctx context.Context, userID string) (release func(), err error) {
	if l.rdb != nil {
		key := concurrencyKey(userID)
		n, incErr := l.rdb.Incr(ctx, key).Result()
		if incErr == nil {
			l.rdb.Expire(ctx, key, time.Hour)
			if int(n) > l.cfg.MaxConcurrentPerUser {
				l.rdb.Decr(ctx, key)
				return nil, LimitErrorf("user %s has %d concurrent executions, exceeds limit of %d", userID, n, l.cfg.MaxConcurrentPerUser)
			}
			return func() { l.rdb.Decr(context.Background(), key) }, nil
		}
		// Redis unavailable: fall through to in-process accounting rather
		// than fail every execution open.
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[userID] >= l.cfg.MaxConcurrentPerUser {
		return nil, LimitErrorf("user %s has %d concurrent executions, exceeds limit of %d", userID, l.inflight[userID], l.cfg.MaxConcurrentPerUser)
	}
	l.inflight[userID]++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.inflight[userID]--
	}, nil
}

// CheckDailyTokenBudget rejects a run before it starts if userID has
// already exhausted its daily token cap; the Executor calls
// RecordTokenUsage after the run completes to update the counter.
func (l *Limiter) CheckDailyTokenBudget(ctx context.Context, userID string) error {
	used, err := l.dailyTokens(ctx, userID)
	if err != nil {
		return nil // fail open: a counter-read failure shouldn't block execution
	}
	if used >= l.cfg.MaxTokensPerUserDay {
		return LimitErrorf("user %s has used %d tokens today, exceeds daily cap of %d", userID, used, l.cfg.MaxTokensPerUserDay)
	}
	return nil
}

// RecordTokenUsage adds tokensUsed to userID's running daily total.
func (l *Limiter) RecordTokenUsage(ctx context.Context, userID string, tokensUsed int) {
	if l.rdb != nil {
		key := dailyTokensKey(userID)
		if _, err := l.rdb.IncrBy(ctx, key, int64(tokensUsed)).Result(); err == nil {
			l.rdb.Expire(ctx, key, 25*time.Hour)
			return
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyUse[userID] += tokensUsed
}

func (l *Limiter) dailyTokens(ctx context.Context, userID string) (int, error) {
	if l.rdb != nil {
		v, err := l.rdb.Get(ctx, dailyTokensKey(userID)).Int()
		if err == redis.Nil {
			return 0, nil
		}
		if err == nil {
			return v, nil
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyUse[userID], nil
}

func concurrencyKey(userID string) string {
	return fmt.Sprintf("workflow:limits:concurrency:%s", userID)
}

func dailyTokensKey(userID string) string {
	return fmt.Sprintf("workflow:limits:daily-tokens:%s:%s", userID, time.Now().UTC().Format("2006-01-02"))
}

// CheckToolAllowed enforces the tool allowlist at invocation time,
// defense-in-depth beyond the filtering Preparation already did when it
// loaded the tool set (spec.md §4.7).
func CheckToolAllowed(toolName string, allowed []string) error {
	if len(allowed) == 0 {
		return ToolErrorf("tool %q requested but no tools are allowed for this workflow", toolName)
	}
	for _, a := range allowed {
		if a == toolName {
			return nil
		}
	}
	return ToolErrorf("tool %q is not in the allowed tool set", toolName)
}

// CheckDocumentOwnership verifies userID owns every requested document ID.
// ownerOf is injected so callers can back it with whatever store fronts
// document metadata.
func CheckDocumentOwnership(userID string, documentIDs []string, ownerOf func(docID string) (string, bool)) error {
	for _, docID := range documentIDs {
		owner, found := ownerOf(docID)
		if !found {
			return NotFoundf("document %s not found", docID)
		}
		if owner != userID {
			return Unauthorizedf("user %s does not own document %s", userID, docID)
		}
	}
	return nil
}

// redactedKeys lists event payload keys never safe to log verbatim.
var redactedKeys = map[string]bool{
	"apiKey": true, "api_key": true, "authorization": true,
	"token": true, "secret": true, "password": true,
}

// RedactSecrets returns a copy of payload with sensitive keys replaced by a
// fixed placeholder, applied to every event before it reaches a logging or
// audit subscriber (spec.md §4.7 — "secrets redacted from logged events").
func RedactSecrets(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if redactedKeys[k] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
