package catguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyhsiao/catguard/internal/audit"
)

// ProvisionAccount creates an administrative account after enforcing the
// signup rate limit for the source IP and the full password policy. The
// password-change timestamp starts at now, so the new credential gets a full
// expiry period.
func (e *Engine) ProvisionAccount(ctx context.Context, username, passphrase, ip string) error {
	now := e.now()

	result, err := e.limiter.Allow(ctx, scopeSignup, ip, e.rateLimit(e.config.Limits.Signup), now)
	switch {
	case err != nil:
		e.failOpen(ctx, "signup rate limit", username, ip, err)
	case !result.Allowed:
		e.metrics.Inc(MetricProvisionRateLimited)
		e.emitAudit(ctx, audit.EventRequestThrottled, false, username, ip, nil, map[string]string{
			"scope": scopeSignup,
		})
		return ErrTooManyRequests
	}

	policyResult := e.policy.Evaluate(passphrase, e.contextTokens(username), nil)
	if !policyResult.Accepted {
		e.metrics.Inc(MetricPasswordChangeRejected)
		perr := &PolicyViolationError{Reasons: policyResult.Reasons}
		e.emitAudit(ctx, audit.EventPasswordRejected, false, username, ip, perr, policyMeta(perr))
		return perr
	}

	hash, err := e.hasher.Hash(passphrase)
	if err != nil {
		return err
	}

	err = e.accounts.Create(ctx, &Account{
		Username:             username,
		PasswordHash:         hash,
		LastPasswordChangeAt: now,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountExists):
		return err
	default:
		e.metrics.Inc(MetricStoreFailClosed)
		e.emitAudit(ctx, audit.EventStoreFailClosed, false, username, ip, err, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricProvisionSuccess)
	e.emitAudit(ctx, audit.EventAccountCreated, true, username, ip, nil, nil)
	return nil
}

// BlockIP puts the source IP on the deny-list for the given duration,
// replacing any shorter block already in place. Block failures are logged
// and counted but never fail the caller; the lockout that usually triggers a
// block already stands on its own.
func (e *Engine) BlockIP(ctx context.Context, ip string, duration time.Duration) {
	if err := e.blocklist.Block(ctx, ip, duration); err != nil {
		e.metrics.Inc(MetricStoreFailOpen)
		e.warn("ip block for %s: %v", ip, err)
		return
	}
	e.metrics.Inc(MetricIPBlocked)
	e.emitAudit(ctx, audit.EventIPBlocked, true, "", ip, nil, map[string]string{
		"duration": duration.String(),
	})
}

// UnblockIP lifts a block before its TTL expires. Operator override.
func (e *Engine) UnblockIP(ctx context.Context, ip string) error {
	if err := e.blocklist.Unblock(ctx, ip); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, audit.EventIPUnblocked, true, "", ip, nil, nil)
	return nil
}

// IPBlockRemaining reports how long the block on ip has left, zero when the
// IP is not blocked.
func (e *Engine) IPBlockRemaining(ctx context.Context, ip string) (time.Duration, error) {
	remaining, err := e.blocklist.Remaining(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return remaining, nil
}
