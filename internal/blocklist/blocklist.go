// Package blocklist maintains the explicit IP deny-list with TTL expiry,
// sharing the counter store with the rate limiter so both survive process
// restarts when a durable store is configured.
package blocklist

import (
	"context"
	"time"

	"github.com/tyhsiao/catguard/internal/store"
)

// List is the TTL-based IP deny-list. Entries expire on their own; Unblock
// exists for manual operator override.
type List struct {
	store store.Store
}

// New creates a block list on the given counter store.
func New(st store.Store) *List {
	return &List{store: st}
}

func key(ip string) string {
	return "blocked_ip:" + ip
}

// Block denies the IP for the given duration, replacing any shorter block
// already in place.
func (l *List) Block(ctx context.Context, ip string, duration time.Duration) error {
	if err := l.store.SetWithTTL(ctx, key(ip), "1", duration); err != nil {
		return l.store.SetWithTTL(ctx, key(ip), "1", duration)
	}
	return nil
}

// IsBlocked reports whether the IP is currently denied. Store failures are
// retried once, then propagated for the caller's fail-open policy.
func (l *List) IsBlocked(ctx context.Context, ip string) (bool, error) {
	blocked, err := l.store.Exists(ctx, key(ip))
	if err != nil {
		blocked, err = l.store.Exists(ctx, key(ip))
		if err != nil {
			return false, err
		}
	}
	return blocked, nil
}

// Unblock lifts a block before its TTL expires.
func (l *List) Unblock(ctx context.Context, ip string) error {
	return l.store.Delete(ctx, key(ip))
}

// Remaining reports how long the block on ip has left, zero when unblocked.
func (l *List) Remaining(ctx context.Context, ip string) (time.Duration, error) {
	return l.store.TTL(ctx, key(ip))
}
