package catguard

import (
	"context"

	"github.com/tyhsiao/catguard/internal/audit"
)

// AllowRequest enforces the general request budgets: the api limit keyed by
// account for authenticated callers, the default limit keyed by source IP
// otherwise. A counter-store outage fails open so an infrastructure problem
// never takes the application down with it.
func (e *Engine) AllowRequest(ctx context.Context, id Identity) RequestDecision {
	scope, limit := scopeDefault, e.config.Limits.Default
	if id.Authenticated() {
		scope, limit = scopeAPI, e.config.Limits.API
	}

	result, err := e.limiter.Allow(ctx, scope, id.Key(), e.rateLimit(limit), e.now())
	if err != nil {
		e.failOpen(ctx, "request rate limit", id.AccountID, id.IP, err)
		return RequestDecision{Allowed: true, Remaining: limit.Max}
	}

	if !result.Allowed {
		e.metrics.Inc(MetricRequestThrottled)
		e.emitAudit(ctx, audit.EventRequestThrottled, false, id.AccountID, id.IP, nil, map[string]string{
			"scope": scope,
		})
	}

	return RequestDecision{
		Allowed:   result.Allowed,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	}
}
