package rate

import (
	"context"
	"time"

	"github.com/tyhsiao/catguard/internal/store"
)

// Limit is a request budget over a fixed window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Result reports the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts events per (scope, identity) key in the shared store. Each
// scope is an independent key namespace, so exhausting one budget never
// affects another.
type Limiter struct {
	store store.Store
}

// New creates a limiter on the given counter store.
func New(st store.Store) *Limiter {
	return &Limiter{store: st}
}

func key(scope, identity string) string {
	return "rl:" + scope + ":" + identity
}

// Allow consumes one slot from the (scope, identity) budget and reports
// whether the call is within the limit. Store failures are retried once; a
// second failure propagates and the caller applies its fail-open policy.
func (l *Limiter) Allow(ctx context.Context, scope, identity string, limit Limit, now time.Time) (Result, error) {
	k := key(scope, identity)

	count, err := l.store.IncrementWithTTL(ctx, k, limit.Window)
	if err != nil {
		count, err = l.store.IncrementWithTTL(ctx, k, limit.Window)
		if err != nil {
			return Result{}, err
		}
	}

	remaining := int64(limit.Max) - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now.Add(limit.Window)
	if count > 1 {
		// Later hits in the window read the remaining TTL so Retry-After
		// reflects the true window start. Best effort: on error the
		// full-window estimate above stands.
		if ttl, terr := l.store.TTL(ctx, k); terr == nil && ttl > 0 {
			resetAt = now.Add(ttl)
		}
	}

	return Result{
		Allowed:   count <= int64(limit.Max),
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counter for (scope, identity). Used when a successful
// login should forgive earlier failed attempts.
func (l *Limiter) Reset(ctx context.Context, scope, identity string) error {
	return l.store.Delete(ctx, key(scope, identity))
}
