package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the backing store is unreachable. Callers decide
// whether to fail open or closed.
var ErrUnavailable = errors.New("counter store unavailable")

// Store is the counter/key-value capability backing the rate limiter and the
// IP block list. All operations must be atomic with respect to concurrent
// callers using the same key.
type Store interface {
	// IncrementWithTTL atomically increments the counter at key and returns
	// the new count. The TTL is applied when the increment creates the key,
	// which gives fixed-window semantics: the window starts at the first hit.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value at key. The second result is false when the key
	// does not exist or has expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores value at key, replacing any prior value and TTL.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime of key, or zero when the key is
	// absent or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
