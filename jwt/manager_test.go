package jwt

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

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

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret: secret,
		TTL:    30 * time.Minute,
		Issuer: "catguard",
		Leeway: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m.WithClock(clock.Now)
}

func TestIssueParseRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, clock)

	token, err := m.Issue("admin", ScopeFull)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("Subject = %q, want admin", claims.Subject)
	}
	if claims.Scope != ScopeFull {
		t.Errorf("Scope = %q, want %q", claims.Scope, ScopeFull)
	}
	if claims.Issuer != "catguard" {
		t.Errorf("Issuer = %q, want catguard", claims.Issuer)
	}
}

func TestRestrictedScopeSurvivesRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, clock)

	token, err := m.Issue("admin", ScopePasswordChange)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Scope != ScopePasswordChange {
		t.Errorf("Scope = %q, want %q", claims.Scope, ScopePasswordChange)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, clock)

	token, err := m.Issue("admin", ScopeFull)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(31 * time.Minute)
	if _, err := m.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestLeewayToleratesSmallSkew(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, clock)

	token, err := m.Issue("admin", ScopeFull)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// 20 seconds past expiry, inside the 30-second leeway.
	clock.Advance(30*time.Minute + 20*time.Second)
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("Parse inside leeway: %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	clock := newFakeClock()
	m := newTestManager(t, clock)

	other, err := NewManager(Config{
		Secret: []byte("ffffffffffffffffffffffffffffffff"),
		TTL:    30 * time.Minute,
		Issuer: "catguard",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := other.Issue("admin", ScopeFull)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m := newTestManager(t, newFakeClock())

	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := m.Parse(token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Parse(%q) err = %v, want ErrTokenInvalid", token, err)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{Secret: []byte("short"), TTL: time.Minute},
		{Secret: secret, TTL: 0},
		{Secret: secret, TTL: time.Minute, Leeway: 5 * time.Minute},
	}
	for _, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("NewManager(%+v) succeeded, want error", cfg)
		}
	}
}
