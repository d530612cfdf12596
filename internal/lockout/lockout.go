// Package lockout implements the per-account failed-login state machine:
// counting consecutive failures, entering a timed lockout at the threshold,
// and recovering automatically once the lock window elapses.
//
// All mutation of an account's failure-tracking fields happens inside a
// per-account critical section around a fresh load/save cycle, so two
// simultaneous failures can never under-count and delay a lockout.
package lockout

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by AccountStore implementations when no account
// matches the requested username.
var ErrNotFound = errors.New("account not found")

// State is the lockout lifecycle position of an account at one instant.
type State uint8

const (
	// StateOpen: failures below threshold, logins permitted.
	StateOpen State = iota
	// StateLocked: threshold reached and the lock window still running.
	StateLocked
	// StateRecoverable: threshold reached but the lock window has elapsed;
	// the next allowed check transitions the account back to Open.
	StateRecoverable
)

// Config holds lockout tuning. Expired reports whether a password set at
// lastChange is past its maximum age at now; it is injected so the tracker
// does not depend on the password policy package.
type Config struct {
	Threshold int
	Duration  time.Duration
	Expired   func(lastChange, now time.Time) bool
}

// Decision is the outcome of CheckLoginAllowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Tracker serializes failure accounting per account on top of an
// [AccountStore].
type Tracker struct {
	store  AccountStore
	config Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker with the given store and config.
func NewTracker(store AccountStore, cfg Config) *Tracker {
	if cfg.Expired == nil {
		cfg.Expired = func(time.Time, time.Time) bool { return false }
	}
	return &Tracker{
		store:  store,
		config: cfg,
		locks:  make(map[string]*sync.Mutex),
	}
}

// StateOf classifies the account against the configured threshold.
func (t *Tracker) StateOf(account *Account, now time.Time) State {
	if account.FailedAttempts < t.config.Threshold {
		return StateOpen
	}
	if account.Locked(now) {
		return StateLocked
	}
	return StateRecoverable
}

func (t *Tracker) lockFor(username string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[username]
	if !ok {
		l = &sync.Mutex{}
		t.locks[username] = l
	}
	return l
}

// load retries once on a transient store failure, then gives up. Lockout
// persistence fails closed, so the caller rejects the login on error.
func (t *Tracker) load(ctx context.Context, username string) (*Account, error) {
	account, err := t.store.Load(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		account, err = t.store.Load(ctx, username)
	}
	return account, err
}

// CheckLoginAllowed loads the account and decides whether a credential check
// may proceed. In the Recoverable state the account transitions back to Open
// (counter cleared, lock removed) and is persisted. A stale failure streak,
// older than one lock duration with no lock pending, is likewise cleared so
// the counter only ever reflects consecutive recent failures.
//
// The returned account is a snapshot for the caller's credential check; the
// tracker reloads before any mutation.
func (t *Tracker) CheckLoginAllowed(ctx context.Context, username string, now time.Time) (Decision, *Account, error) {
	l := t.lockFor(username)
	l.Lock()
	defer l.Unlock()

	account, err := t.load(ctx, username)
	if err != nil {
		return Decision{}, nil, err
	}

	switch t.StateOf(account, now) {
	case StateLocked:
		return Decision{Allowed: false, RetryAfter: account.LockedUntil.Sub(now)}, account.Clone(), nil
	case StateRecoverable:
		account.FailedAttempts = 0
		account.LastFailedAt = time.Time{}
		account.LockedUntil = time.Time{}
		if err := t.save(ctx, account); err != nil {
			return Decision{}, nil, err
		}
	default:
		if account.FailedAttempts > 0 && now.Sub(account.LastFailedAt) > t.config.Duration {
			account.FailedAttempts = 0
			account.LastFailedAt = time.Time{}
			if err := t.save(ctx, account); err != nil {
				return Decision{}, nil, err
			}
		}
	}

	return Decision{Allowed: true}, account.Clone(), nil
}

// RecordFailure increments the failure counter and, when the increment
// crosses the threshold, starts the lock window at now. It reports whether
// this call triggered the lockout so the caller can impose its IP block.
func (t *Tracker) RecordFailure(ctx context.Context, username string, now time.Time) (crossed bool, err error) {
	l := t.lockFor(username)
	l.Lock()
	defer l.Unlock()

	account, err := t.load(ctx, username)
	if err != nil {
		return false, err
	}

	account.FailedAttempts++
	account.LastFailedAt = now

	if account.FailedAttempts >= t.config.Threshold && account.LockedUntil.IsZero() {
		account.LockedUntil = now.Add(t.config.Duration)
		crossed = true
	}

	if err := t.save(ctx, account); err != nil {
		return false, err
	}
	return crossed, nil
}

// RecordSuccess clears the failure streak and any lock, and raises the
// forced-change flag when the password has outlived its maximum age.
func (t *Tracker) RecordSuccess(ctx context.Context, username string, now time.Time) (*Account, error) {
	l := t.lockFor(username)
	l.Lock()
	defer l.Unlock()

	account, err := t.load(ctx, username)
	if err != nil {
		return nil, err
	}

	account.FailedAttempts = 0
	account.LastFailedAt = time.Time{}
	account.LockedUntil = time.Time{}
	if t.config.Expired(account.LastPasswordChangeAt, now) {
		account.MustChangePassword = true
	}

	if err := t.save(ctx, account); err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// Mutate runs fn on a freshly loaded account inside the per-account critical
// section and persists the result. The engine's password-change flow uses it
// so hash/history updates serialize with failure accounting.
func (t *Tracker) Mutate(ctx context.Context, username string, fn func(*Account) error) (*Account, error) {
	l := t.lockFor(username)
	l.Lock()
	defer l.Unlock()

	account, err := t.load(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := fn(account); err != nil {
		return nil, err
	}
	if err := t.save(ctx, account); err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// Create persists a brand-new account, failing when the username is taken.
func (t *Tracker) Create(ctx context.Context, account *Account) error {
	l := t.lockFor(account.Username)
	l.Lock()
	defer l.Unlock()

	if _, err := t.store.Load(ctx, account.Username); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return t.save(ctx, account)
}

// ErrExists is returned by Create for a username that is already taken.
var ErrExists = errors.New("account already exists")

func (t *Tracker) save(ctx context.Context, account *Account) error {
	if err := t.store.Save(ctx, account); err != nil {
		return t.store.Save(ctx, account)
	}
	return nil
}
