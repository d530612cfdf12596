package lockout

import (
	"context"
	"time"
)

// Account is the administrative account record. The lockout tracker owns all
// mutation of the failure-tracking fields; password fields are written only
// through the engine's password-change flow, which runs under the same
// per-account serialization.
type Account struct {
	Username             string
	PasswordHash         string
	LastPasswordChangeAt time.Time
	// PasswordHistory holds prior password hashes, most recent first.
	PasswordHistory    []string
	FailedAttempts     int
	LastFailedAt       time.Time
	LockedUntil        time.Time
	MustChangePassword bool
}

// Locked reports whether a lockout is in effect at the given instant.
func (a *Account) Locked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// Clone returns a deep copy so callers can hold the record outside the
// tracker's critical section.
func (a *Account) Clone() *Account {
	cp := *a
	cp.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	return &cp
}

// AccountStore is the persistence collaborator for [Account] records.
// Implementations map the record onto the host application's database. Load
// returns the host's not-found error translated to the sentinel exposed by
// the root package.
type AccountStore interface {
	Load(ctx context.Context, username string) (*Account, error)
	Save(ctx context.Context, account *Account) error
}
