package catguard

import (
	"time"

	"github.com/tyhsiao/catguard/internal/lockout"
)

// Account is the administrative account record tracked by the lockout state
// machine and the password policy. It lives in the host application's
// database; catguard mutates it through [AccountStore].
type Account = lockout.Account

// AccountStore is the persistence collaborator for [Account] records. Save
// must apply the whole record atomically; catguard serializes calls per
// account, so implementations do not need their own row locking for
// correctness within one process. Load returns [ErrAccountNotFound] for an
// unknown username.
type AccountStore = lockout.AccountStore

// LockState classifies an account against the lockout threshold.
type LockState = lockout.State

const (
	// LockStateOpen: failures below threshold, logins permitted.
	LockStateOpen = lockout.StateOpen
	// LockStateLocked: threshold reached, lock window still running.
	LockStateLocked = lockout.StateLocked
	// LockStateRecoverable: lock window elapsed, next check reopens.
	LockStateRecoverable = lockout.StateRecoverable
)

// Identity is the rate-limit subject resolved once at the request boundary:
// the authenticated account ID when available, else the source IP.
type Identity struct {
	AccountID string
	IP        string
}

// IdentityFromIP builds an unauthenticated identity.
func IdentityFromIP(ip string) Identity { return Identity{IP: ip} }

// IdentityFromAccount builds an authenticated identity that still remembers
// the source IP for audit purposes.
func IdentityFromAccount(accountID, ip string) Identity {
	return Identity{AccountID: accountID, IP: ip}
}

// Key returns the counter key component for this identity. Authenticated
// requests are counted per account so a shared NAT cannot exhaust another
// visitor's budget.
func (id Identity) Key() string {
	if id.AccountID != "" {
		return "user:" + id.AccountID
	}
	return "ip:" + id.IP
}

// Authenticated reports whether the identity carries an account ID.
func (id Identity) Authenticated() bool { return id.AccountID != "" }

// LoginResult is returned by [Engine.Login] on success.
type LoginResult struct {
	Username string
	// SessionToken is a signed short-lived admin session token. When
	// MustChangePassword is set the token carries the restricted
	// password-change scope and must not be accepted on other routes.
	SessionToken       string
	MustChangePassword bool
}

// RequestDecision is returned by [Engine.AllowRequest].
type RequestDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
