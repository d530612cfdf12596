package blocklist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tyhsiao/catguard/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestBlockExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	list := New(store.NewMemoryWithClock(clock.Now))
	ctx := context.Background()

	if err := list.Block(ctx, "10.0.0.1", 15*time.Minute); err != nil {
		t.Fatalf("Block: %v", err)
	}

	blocked, err := list.IsBlocked(ctx, "10.0.0.1")
	if err != nil || !blocked {
		t.Fatalf("IsBlocked = %v, %v; want blocked", blocked, err)
	}

	clock.Advance(15*time.Minute + time.Second)
	blocked, err = list.IsBlocked(ctx, "10.0.0.1")
	if err != nil || blocked {
		t.Fatalf("IsBlocked after TTL = %v, %v; want unblocked", blocked, err)
	}
}

func TestUnblockLiftsEarly(t *testing.T) {
	clock := newFakeClock()
	list := New(store.NewMemoryWithClock(clock.Now))
	ctx := context.Background()

	if err := list.Block(ctx, "10.0.0.1", time.Hour); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if err := list.Unblock(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}

	blocked, err := list.IsBlocked(ctx, "10.0.0.1")
	if err != nil || blocked {
		t.Fatalf("IsBlocked = %v, %v; want unblocked", blocked, err)
	}
}

func TestRemaining(t *testing.T) {
	clock := newFakeClock()
	list := New(store.NewMemoryWithClock(clock.Now))
	ctx := context.Background()

	if remaining, _ := list.Remaining(ctx, "10.0.0.1"); remaining != 0 {
		t.Fatalf("Remaining before block = %s, want 0", remaining)
	}

	if err := list.Block(ctx, "10.0.0.1", 15*time.Minute); err != nil {
		t.Fatalf("Block: %v", err)
	}
	clock.Advance(5 * time.Minute)

	remaining, err := list.Remaining(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if want := 10 * time.Minute; remaining != want {
		t.Fatalf("Remaining = %s, want %s", remaining, want)
	}
}

func TestBlocksAreScopedPerIP(t *testing.T) {
	list := New(store.NewMemory())
	ctx := context.Background()

	if err := list.Block(ctx, "10.0.0.1", time.Hour); err != nil {
		t.Fatalf("Block: %v", err)
	}
	blocked, err := list.IsBlocked(ctx, "10.0.0.2")
	if err != nil || blocked {
		t.Fatalf("unrelated IP blocked = %v, %v", blocked, err)
	}
}
