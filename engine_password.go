package catguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyhsiao/catguard/internal/audit"
	"github.com/tyhsiao/catguard/password"
)

// ChangePassword verifies the current password, evaluates the candidate
// against the full policy (composition, strength, reuse), and rotates the
// hash. The whole read-check-write runs inside the account's critical
// section, so it serializes with concurrent failure accounting.
//
// On success the failure streak, any lock, and the forced-change flag are
// all cleared, and the replaced hash joins the reuse history.
func (e *Engine) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	now := e.now()

	_, err := e.accounts.Mutate(ctx, username, func(account *Account) error {
		ok, verr := e.hasher.Verify(currentPassword, account.PasswordHash)
		if verr != nil || !ok {
			return ErrInvalidCredentials
		}

		// The active hash participates in the reuse check alongside the
		// retained history, so re-submitting the current password fails too.
		prior := append([]string{account.PasswordHash}, account.PasswordHistory...)
		result := e.policy.Evaluate(newPassword, e.contextTokens(username), prior)
		if !result.Accepted {
			return &PolicyViolationError{Reasons: result.Reasons}
		}

		hash, herr := e.hasher.Hash(newPassword)
		if herr != nil {
			return herr
		}

		history := prior
		if max := e.config.Password.Policy.HistorySize; len(history) > max {
			history = history[:max]
		}

		account.PasswordHash = hash
		account.PasswordHistory = history
		account.LastPasswordChangeAt = now
		account.MustChangePassword = false
		account.FailedAttempts = 0
		account.LastFailedAt = time.Time{}
		account.LockedUntil = time.Time{}
		return nil
	})

	switch {
	case err == nil:
		e.metrics.Inc(MetricPasswordChangeSuccess)
		e.emitAudit(ctx, audit.EventPasswordChanged, true, username, "", nil, nil)
		return nil
	case errors.Is(err, ErrInvalidCredentials):
		e.emitAudit(ctx, audit.EventPasswordRejected, false, username, "", err, nil)
		return err
	case errors.Is(err, ErrPasswordPolicy):
		e.metrics.Inc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, audit.EventPasswordRejected, false, username, "", err, policyMeta(err))
		return err
	case errors.Is(err, ErrAccountNotFound):
		return err
	default:
		e.metrics.Inc(MetricStoreFailClosed)
		e.emitAudit(ctx, audit.EventStoreFailClosed, false, username, "", err, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// EvaluatePassword runs the policy without touching any account, for signup
// forms and live strength meters. priorHashes may be nil.
func (e *Engine) EvaluatePassword(candidate, username string, priorHashes []string) password.Result {
	return e.policy.Evaluate(candidate, e.contextTokens(username), priorHashes)
}

// contextTokens are the identity-derived strings the strength estimator
// penalizes when they appear inside a candidate password.
func (e *Engine) contextTokens(username string) []string {
	tokens := []string{e.config.Session.Issuer}
	if username != "" {
		tokens = append(tokens, username)
	}
	return tokens
}

func policyMeta(err error) map[string]string {
	reasons, ok := AsPolicyViolation(err)
	if !ok {
		return nil
	}
	meta := make(map[string]string, len(reasons))
	for i, r := range reasons {
		meta[fmt.Sprintf("reason_%d", i)] = string(r)
	}
	return meta
}
