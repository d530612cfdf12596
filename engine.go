package catguard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tyhsiao/catguard/editwindow"
	"github.com/tyhsiao/catguard/internal/audit"
	"github.com/tyhsiao/catguard/internal/blocklist"
	"github.com/tyhsiao/catguard/internal/lockout"
	"github.com/tyhsiao/catguard/internal/rate"
	"github.com/tyhsiao/catguard/jwt"
	"github.com/tyhsiao/catguard/password"
)

// Engine orchestrates the protection checks on every login, password
// change, and guarded request. Construct it through [Builder.Build]; all
// methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	accounts  *lockout.Tracker
	limiter   *rate.Limiter
	blocklist *blocklist.List
	hasher    *password.Hasher
	policy    *password.Policy
	sessions  *jwt.Manager
	editAuth  *editwindow.Authorizer

	metrics    *Metrics
	dispatcher *audit.Dispatcher

	now  func() time.Time
	warn func(format string, args ...any)

	redisClient *redis.Client
	ownsRedis   bool
}

// Rate-limit scope namespaces. Each scope's counters are independent.
const (
	scopeLogin   = "login"
	scopeSignup  = "signup"
	scopeAPI     = "api"
	scopeDefault = "default"
)

func (e *Engine) rateLimit(l Limit) rate.Limit {
	return rate.Limit{Max: l.Max, Window: l.Window}
}

// Policy returns the active password policy, for UIs that render rule text
// or live strength meters.
func (e *Engine) Policy() *password.Policy { return e.policy }

// EditAuthorizer returns the configured edit-window authorizer.
func (e *Engine) EditAuthorizer() *editwindow.Authorizer { return e.editAuth }

// NewOwnerToken mints an opaque owner token for a freshly created
// anonymous record.
func (e *Engine) NewOwnerToken() string { return editwindow.NewOwnerToken() }

// CanMutateRecord checks the anonymous edit window against the engine
// clock. Denials are audited; the decision itself is a pure function of the
// record, token, and time.
func (e *Engine) CanMutateRecord(ctx context.Context, record editwindow.Record, requesterToken string) bool {
	if e.editAuth.CanMutate(record, requesterToken, e.now()) {
		return true
	}
	e.emitAudit(ctx, audit.EventEditWindowDenied, false, "", "", nil, nil)
	return false
}

// ValidateSession parses and validates an admin session token.
func (e *Engine) ValidateSession(token string) (*jwt.SessionClaims, error) {
	return e.sessions.Parse(token)
}

// MetricsSnapshot returns a deep copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// LockState reports the lockout lifecycle position of an account.
func (e *Engine) LockState(account *Account) LockState {
	return e.accounts.StateOf(account, e.now())
}

// Close flushes the audit dispatcher and closes the Redis client when the
// engine created it.
func (e *Engine) Close() error {
	e.dispatcher.Close()
	if e.ownsRedis && e.redisClient != nil {
		return e.redisClient.Close()
	}
	return nil
}
