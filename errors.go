package catguard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyhsiao/catguard/internal/lockout"
	"github.com/tyhsiao/catguard/password"
)

var (
	// ErrTooManyRequests is returned when a rate-limit window is exhausted.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrIPBlocked is returned when the source IP is on the block list.
	ErrIPBlocked = errors.New("ip blocked")
	// ErrAccountLocked is returned while an account lockout is in effect.
	// Use [AsLocked] to recover the remaining lock duration.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials is returned for a wrong password and for an
	// unknown username alike, so callers never learn which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned when a candidate password violates the
	// policy. Use [AsPolicyViolation] to recover the itemized reason codes.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordChangeRequired signals that the account's password has
	// expired and must be changed before full privileges are granted.
	ErrPasswordChangeRequired = errors.New("password change required")
	// ErrStoreUnavailable wraps backing-store failures. It is internal to the
	// fail-open/fail-closed policy and must never be shown verbatim to users.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrAccountNotFound is returned by AccountStore implementations when no
	// account matches the requested username.
	ErrAccountNotFound = lockout.ErrNotFound
	// ErrAccountExists is returned by ProvisionAccount for a taken username.
	ErrAccountExists = lockout.ErrExists
	// ErrEngineNotReady is returned when a required collaborator was not
	// supplied to the builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the remaining lock duration alongside
// [ErrAccountLocked].
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrAccountLocked) hold.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// AsLocked extracts the retry-after duration from a login error, if the error
// is a lockout rejection.
func AsLocked(err error) (time.Duration, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}

// PolicyViolationError carries the itemized reason codes alongside
// [ErrPasswordPolicy].
type PolicyViolationError struct {
	Reasons []password.ReasonCode
}

func (e *PolicyViolationError) Error() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = string(r)
	}
	return "password policy violation: " + strings.Join(parts, ", ")
}

// Unwrap makes errors.Is(err, ErrPasswordPolicy) hold.
func (e *PolicyViolationError) Unwrap() error { return ErrPasswordPolicy }

// AsPolicyViolation extracts the failing reason codes from a password-change
// or provisioning error.
func AsPolicyViolation(err error) ([]password.ReasonCode, bool) {
	var pe *PolicyViolationError
	if errors.As(err, &pe) {
		return pe.Reasons, true
	}
	return nil, false
}
