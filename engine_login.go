package catguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyhsiao/catguard/internal/audit"
	"github.com/tyhsiao/catguard/jwt"
	pw "github.com/tyhsiao/catguard/password"
)

// Login runs the full protection sequence for one credential submission:
// login rate limit by source IP, IP block list, account lockout, then the
// credential check itself. Checks run cheapest first so an abusive source is
// rejected before any password hashing happens.
//
// Unknown usernames and wrong passwords both return [ErrInvalidCredentials],
// after a hash verification either way, so neither the response nor its
// timing reveals whether the account exists.
//
// Counter-store outages fail open (the attempt proceeds, with a warning and
// a metric); account-store outages fail closed with [ErrStoreUnavailable].
func (e *Engine) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	now := e.now()

	result, err := e.limiter.Allow(ctx, scopeLogin, ip, e.rateLimit(e.config.Limits.Login), now)
	switch {
	case err != nil:
		e.failOpen(ctx, "login rate limit", username, ip, err)
	case !result.Allowed:
		e.metrics.Inc(MetricLoginRateLimited)
		e.emitAudit(ctx, audit.EventLoginRateLimited, false, username, ip, nil, nil)
		return nil, ErrTooManyRequests
	}

	blocked, err := e.blocklist.IsBlocked(ctx, ip)
	switch {
	case err != nil:
		e.failOpen(ctx, "ip block list", username, ip, err)
	case blocked:
		e.metrics.Inc(MetricLoginIPBlocked)
		e.emitAudit(ctx, audit.EventLoginIPBlocked, false, username, ip, nil, nil)
		return nil, ErrIPBlocked
	}

	decision, account, err := e.accounts.CheckLoginAllowed(ctx, username, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Burn a verification against the decoy hash so the unknown-user
			// path costs the same as a wrong password.
			_, _ = e.hasher.Verify(password, pw.DecoyHash)
			e.metrics.Inc(MetricLoginFailure)
			e.emitAudit(ctx, audit.EventLoginFailure, false, username, ip, nil, nil)
			return nil, ErrInvalidCredentials
		}
		e.metrics.Inc(MetricStoreFailClosed)
		e.emitAudit(ctx, audit.EventStoreFailClosed, false, username, ip, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !decision.Allowed {
		e.metrics.Inc(MetricLoginLocked)
		e.emitAudit(ctx, audit.EventLoginFailure, false, username, ip, ErrAccountLocked, map[string]string{
			"retry_after": decision.RetryAfter.String(),
		})
		return nil, &LockedError{RetryAfter: decision.RetryAfter}
	}

	ok, verr := e.hasher.Verify(password, account.PasswordHash)
	if verr != nil || !ok {
		return nil, e.recordLoginFailure(ctx, username, ip)
	}

	account, err = e.accounts.RecordSuccess(ctx, username, now)
	if err != nil {
		e.metrics.Inc(MetricStoreFailClosed)
		e.emitAudit(ctx, audit.EventStoreFailClosed, false, username, ip, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	scope := jwt.ScopeFull
	if account.MustChangePassword {
		scope = jwt.ScopePasswordChange
	}
	token, err := e.sessions.Issue(username, scope)
	if err != nil {
		return nil, err
	}

	// A successful login forgives the source's earlier failed attempts.
	if rerr := e.limiter.Reset(ctx, scopeLogin, ip); rerr != nil {
		e.warn("login limit reset for %s: %v", ip, rerr)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.EventLoginSuccess, true, username, ip, nil, nil)

	return &LoginResult{
		Username:           account.Username,
		SessionToken:       token,
		MustChangePassword: account.MustChangePassword,
	}, nil
}

// recordLoginFailure counts the miss and, when this failure crosses the
// lockout threshold, starts the lock and blocks the source IP.
func (e *Engine) recordLoginFailure(ctx context.Context, username, ip string) error {
	crossed, err := e.accounts.RecordFailure(ctx, username, e.now())
	if err != nil {
		// The rejection stands either way; the lost count only delays a
		// future lockout by one attempt.
		e.warn("failure accounting for %q: %v", username, err)
	}

	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, audit.EventLoginFailure, false, username, ip, nil, nil)

	if crossed {
		e.metrics.Inc(MetricLockoutTriggered)
		e.emitAudit(ctx, audit.EventAccountLocked, false, username, ip, nil, map[string]string{
			"lock_duration": e.config.Lockout.Duration.String(),
		})
		if e.config.Lockout.BlockIPOnLockout && ip != "" {
			e.BlockIP(ctx, ip, e.config.Lockout.IPBlockDuration)
		}
	}

	return ErrInvalidCredentials
}

// failOpen logs and counts a counter-store outage that was resolved by
// letting the request proceed.
func (e *Engine) failOpen(ctx context.Context, component, username, ip string, err error) {
	e.metrics.Inc(MetricStoreFailOpen)
	e.warn("%s unavailable, failing open: %v", component, err)
	e.emitAudit(ctx, audit.EventStoreFailOpen, true, username, ip, err, map[string]string{
		"component": component,
	})
}
