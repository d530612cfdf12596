package catguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tyhsiao/catguard/password"
)

const (
	strongPassword  = "vexing-Quartz-29-lantern!"
	rotatedPassword = "gilded-Falcon-88-compass?"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memAccounts is an in-memory AccountStore for engine tests.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*Account)}
}

func (s *memAccounts) Load(_ context.Context, username string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *memAccounts) Save(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.Username] = account.Clone()
	return nil
}

func (s *memAccounts) get(username string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[username].Clone()
}

func (s *memAccounts) put(account *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Username] = account.Clone()
}

func testConfig() Config {
	cfg := Config{}
	cfg.Session.Secret = testSecret
	cfg.Metrics.Enabled = true
	// Interactive argon2 costs are too slow for the test suite.
	cfg.Password.Hash = password.HashConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	// Signup throttling gets its own test; elsewhere it only gets in the way.
	cfg.Limits.Signup = Limit{Max: 1000, Window: time.Hour}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memAccounts, *testClock) {
	t.Helper()

	clock := newTestClock()
	accounts := newMemAccounts()

	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(accounts).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return engine, accounts, clock
}

func provision(t *testing.T, engine *Engine, username, passphrase string) {
	t.Helper()
	if err := engine.ProvisionAccount(context.Background(), username, passphrase, "192.0.2.99"); err != nil {
		t.Fatalf("ProvisionAccount(%s): %v", username, err)
	}
}

func TestBuildRequiresAccountStore(t *testing.T) {
	cfg := testConfig()
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("Build without account store succeeded")
	}
}

func TestBuildRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Secret = []byte("too short")
	if _, err := New().WithConfig(cfg).WithAccountStore(newMemAccounts()).Build(); err == nil {
		t.Fatal("Build with short secret succeeded")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithAccountStore(newMemAccounts())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build succeeded")
	}
}

func TestLockStateClassification(t *testing.T) {
	engine, accounts, clock := newTestEngine(t, testConfig())
	provision(t, engine, "admin", strongPassword)

	if got := engine.LockState(accounts.get("admin")); got != LockStateOpen {
		t.Fatalf("LockState = %d, want open", got)
	}

	locked := accounts.get("admin")
	locked.FailedAttempts = 5
	locked.LockedUntil = clock.Now().Add(time.Minute)
	if got := engine.LockState(locked); got != LockStateLocked {
		t.Fatalf("LockState = %d, want locked", got)
	}

	locked.LockedUntil = clock.Now().Add(-time.Minute)
	if got := engine.LockState(locked); got != LockStateRecoverable {
		t.Fatalf("LockState = %d, want recoverable", got)
	}
}
