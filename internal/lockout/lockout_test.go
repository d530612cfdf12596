package lockout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory AccountStore for tests. It deliberately does no
// locking beyond a map mutex: serialization is the tracker's job.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	failLoad bool
	failSave bool
	loads    int
	saves    int
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*Account)}
}

func (s *memStore) Load(_ context.Context, username string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	if s.failLoad {
		return nil, errors.New("load failed")
	}
	account, ok := s.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	return account.Clone(), nil
}

func (s *memStore) Save(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.failSave {
		return errors.New("save failed")
	}
	s.accounts[account.Username] = account.Clone()
	return nil
}

func (s *memStore) get(username string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[username].Clone()
}

func (s *memStore) put(account *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Username] = account.Clone()
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(store AccountStore) *Tracker {
	return NewTracker(store, Config{Threshold: 3, Duration: 15 * time.Minute})
}

func TestFailuresBelowThresholdStayOpen(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		crossed, err := tracker.RecordFailure(ctx, "admin", baseTime)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if crossed {
			t.Fatal("crossed threshold early")
		}
	}

	decision, account, err := tracker.CheckLoginAllowed(ctx, "admin", baseTime.Add(time.Second))
	if err != nil {
		t.Fatalf("CheckLoginAllowed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected login allowed")
	}
	if account.FailedAttempts != 2 {
		t.Fatalf("FailedAttempts = %d, want 2", account.FailedAttempts)
	}
}

func TestThresholdTriggersLock(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)
	ctx := context.Background()

	var crossed bool
	for i := 0; i < 3; i++ {
		var err error
		crossed, err = tracker.RecordFailure(ctx, "admin", baseTime)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if !crossed {
		t.Fatal("third failure should cross the threshold")
	}

	decision, _, err := tracker.CheckLoginAllowed(ctx, "admin", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("CheckLoginAllowed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected login denied during lock")
	}
	if want := 14 * time.Minute; decision.RetryAfter != want {
		t.Fatalf("RetryAfter = %s, want %s", decision.RetryAfter, want)
	}
}

func TestLockCrossingReportsOnlyOnce(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "admin", baseTime); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	crossed, err := tracker.RecordFailure(ctx, "admin", baseTime.Add(time.Second))
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if crossed {
		t.Fatal("crossing reported twice")
	}
}

func TestLockExpiryReopensAndResets(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "admin", baseTime); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	after := baseTime.Add(15*time.Minute + time.Second)
	decision, account, err := tracker.CheckLoginAllowed(ctx, "admin", after)
	if err != nil {
		t.Fatalf("CheckLoginAllowed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected login allowed after lock expiry")
	}
	if account.FailedAttempts != 0 || !account.LockedUntil.IsZero() {
		t.Fatalf("account not reset: %+v", account)
	}

	// The reset must be persisted, not just reflected in the snapshot.
	if stored := store.get("admin"); stored.FailedAttempts != 0 {
		t.Fatalf("persisted FailedAttempts = %d, want 0", stored.FailedAttempts)
	}
}

func TestStaleStreakClears(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := tracker.RecordFailure(ctx, "admin", baseTime); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	after := baseTime.Add(16 * time.Minute)
	_, account, err := tracker.CheckLoginAllowed(ctx, "admin", after)
	if err != nil {
		t.Fatalf("CheckLoginAllowed: %v", err)
	}
	if account.FailedAttempts != 0 {
		t.Fatalf("stale streak not cleared: %d", account.FailedAttempts)
	}
}

func TestRecordSuccessResetsAndFlagsExpiredPassword(t *testing.T) {
	store := newMemStore()
	store.put(&Account{
		Username:             "admin",
		FailedAttempts:       2,
		LastFailedAt:         baseTime,
		LastPasswordChangeAt: baseTime.Add(-100 * 24 * time.Hour),
	})
	tracker := NewTracker(store, Config{
		Threshold: 3,
		Duration:  15 * time.Minute,
		Expired: func(lastChange, now time.Time) bool {
			return now.Sub(lastChange) > 90*24*time.Hour
		},
	})

	account, err := tracker.RecordSuccess(context.Background(), "admin", baseTime)
	if err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if account.FailedAttempts != 0 || !account.LastFailedAt.IsZero() {
		t.Fatalf("streak not reset: %+v", account)
	}
	if !account.MustChangePassword {
		t.Fatal("expired password not flagged")
	}
}

func TestConcurrentFailuresNeverUnderCount(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := NewTracker(store, Config{Threshold: 6, Duration: 15 * time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordFailure(ctx, "admin", baseTime); err != nil {
				t.Errorf("RecordFailure: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.get("admin").FailedAttempts; got != 4 {
		t.Fatalf("FailedAttempts = %d, want 4 (lost update)", got)
	}
}

func TestCheckLoginAllowedFailsClosedOnStoreError(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	store.failLoad = true
	tracker := newTestTracker(store)

	if _, _, err := tracker.CheckLoginAllowed(context.Background(), "admin", baseTime); err == nil {
		t.Fatal("expected error from unreachable store")
	}
	// One retry, then give up.
	if store.loads != 2 {
		t.Fatalf("loads = %d, want 2", store.loads)
	}
}

func TestMutateSerializesWithFailureAccounting(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin", FailedAttempts: 1, LastFailedAt: baseTime})
	tracker := newTestTracker(store)
	ctx := context.Background()

	_, err := tracker.Mutate(ctx, "admin", func(account *Account) error {
		account.PasswordHash = "new-hash"
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	stored := store.get("admin")
	if stored.PasswordHash != "new-hash" {
		t.Fatalf("PasswordHash = %q", stored.PasswordHash)
	}
	if stored.FailedAttempts != 1 {
		t.Fatalf("Mutate clobbered unrelated fields: %+v", stored)
	}
}

func TestMutatePropagatesCallbackError(t *testing.T) {
	store := newMemStore()
	store.put(&Account{Username: "admin"})
	tracker := newTestTracker(store)

	sentinel := errors.New("nope")
	_, err := tracker.Mutate(context.Background(), "admin", func(*Account) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
	if store.saves != 0 {
		t.Fatal("rejected mutation was persisted")
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	if err := tracker.Create(ctx, &Account{Username: "admin"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tracker.Create(ctx, &Account{Username: "admin"}); !errors.Is(err, ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestStateOf(t *testing.T) {
	tracker := newTestTracker(newMemStore())

	cases := []struct {
		name    string
		account Account
		want    State
	}{
		{"fresh", Account{}, StateOpen},
		{"below threshold", Account{FailedAttempts: 2}, StateOpen},
		{"locked", Account{FailedAttempts: 3, LockedUntil: baseTime.Add(time.Minute)}, StateLocked},
		{"recoverable", Account{FailedAttempts: 3, LockedUntil: baseTime.Add(-time.Minute)}, StateRecoverable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tracker.StateOf(&tc.account, baseTime); got != tc.want {
				t.Errorf("StateOf = %d, want %d", got, tc.want)
			}
		})
	}
}
