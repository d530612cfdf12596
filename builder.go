package catguard

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tyhsiao/catguard/editwindow"
	"github.com/tyhsiao/catguard/internal/audit"
	"github.com/tyhsiao/catguard/internal/blocklist"
	"github.com/tyhsiao/catguard/internal/lockout"
	"github.com/tyhsiao/catguard/internal/rate"
	"github.com/tyhsiao/catguard/internal/store"
	"github.com/tyhsiao/catguard/jwt"
	"github.com/tyhsiao/catguard/password"
)

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpAuditSink discards all audit events.
type NoOpAuditSink = audit.NoOpSink

// AuditEvent is the structured record delivered to an [AuditSink].
type AuditEvent = audit.Event

// NewJSONAuditSink returns a sink writing one JSON event per line.
func NewJSONAuditSink(w interface{ Write([]byte) (int, error) }) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config   Config
	accounts AccountStore
	redis    *redis.Client
	sink     AuditSink
	now      func() time.Time
	warn     func(format string, args ...any)
	built    bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Zero-valued fields are
// filled back in from defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAccountStore supplies the persistence collaborator. Required.
func (b *Builder) WithAccountStore(accounts AccountStore) *Builder {
	b.accounts = accounts
	return b
}

// WithRedis supplies an existing Redis client for the shared counter store.
// The caller keeps ownership of the client. Without this (and with
// Config.Redis.Enabled false) the engine uses a process-local store.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink enables audit dispatch to the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithClock overrides the engine time source. Tests use it to cross lockout
// and expiry boundaries without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithWarn supplies a logger hook for degraded-mode notices (fail-open on
// counter-store outage). Default drops them.
func (b *Builder) WithWarn(warn func(format string, args ...any)) *Builder {
	b.warn = warn
	return b
}

// Build validates the configuration, wires the components, and returns the
// engine. A builder can only be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrEngineNotReady
	}
	if b.accounts == nil {
		return nil, ErrEngineNotReady
	}
	b.built = true

	cfg := normalizeConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Hash)
	if err != nil {
		return nil, err
	}
	policy := password.NewPolicy(cfg.Password.Policy, hasher)

	sessions, err := jwt.NewManager(jwt.Config{
		Secret: cfg.Session.Secret,
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
		Leeway: cfg.Session.Leeway,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		hasher:   hasher,
		policy:   policy,
		sessions: sessions,
		editAuth: editwindow.New(cfg.EditWindow.Window),
		metrics:  NewMetrics(cfg.Metrics),
		now:      b.now,
		warn:     b.warn,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.warn == nil {
		e.warn = func(string, ...any) {}
	}
	sessions.WithClock(e.now)

	counters := b.counterStore(e, cfg)
	e.limiter = rate.New(counters)
	e.blocklist = blocklist.New(counters)

	e.accounts = lockout.NewTracker(b.accounts, lockout.Config{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
		Expired:   policy.IsExpired,
	})

	e.dispatcher = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)

	return e, nil
}

func (b *Builder) counterStore(e *Engine, cfg Config) store.Store {
	if b.redis != nil {
		e.redisClient = b.redis
		return store.NewRedis(b.redis)
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		e.redisClient = client
		e.ownsRedis = true
		return store.NewRedis(client)
	}
	// Degraded mode: consistent within this process only.
	return store.NewMemoryWithClock(e.now)
}
