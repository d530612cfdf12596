package catguard

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tyhsiao/catguard/password"
)

// Limit is a request budget over a fixed window, e.g. 5 per minute.
type Limit struct {
	Max    int
	Window time.Duration
}

func (l Limit) String() string {
	return fmt.Sprintf("%d per %s", l.Max, l.Window)
}

// Config is the full engine configuration. Zero values are filled from
// defaultConfig by the builder; only Session.Secret has no default.
type Config struct {
	Lockout    LockoutConfig
	Password   PasswordConfig
	Limits     LimitsConfig
	Session    SessionConfig
	EditWindow EditWindowConfig
	Redis      RedisConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// LockoutConfig tunes the failed-login state machine and the IP block that
// accompanies a lockout.
type LockoutConfig struct {
	// Threshold is the consecutive-failure count that triggers a lockout.
	Threshold int
	// Duration is how long the account stays locked, measured from the
	// failure that crossed the threshold.
	Duration time.Duration
	// BlockIPOnLockout also puts the offending source IP on the block list
	// when the threshold is crossed.
	BlockIPOnLockout bool
	// IPBlockDuration bounds that IP block.
	IPBlockDuration time.Duration
}

// PasswordConfig bundles hashing costs and policy rules.
type PasswordConfig struct {
	Hash   password.HashConfig
	Policy password.PolicyConfig
}

// LimitsConfig holds the named rate-limit budgets. Each is enforced in its
// own key namespace, so exhausting one never affects another.
type LimitsConfig struct {
	// Login bounds login attempts per source IP.
	Login Limit
	// Signup bounds account provisioning per source IP.
	Signup Limit
	// API bounds authenticated general requests per account.
	API Limit
	// Default bounds unauthenticated general requests per source IP.
	Default Limit
}

// SessionConfig tunes the signed admin session token.
type SessionConfig struct {
	// Secret is the HS256 signing key, minimum 32 bytes. Required.
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// EditWindowConfig tunes the anonymous-record mutation window.
type EditWindowConfig struct {
	Window time.Duration
}

// RedisConfig selects the shared counter store. When Enabled is false the
// engine degrades to a process-local in-memory store: still internally
// consistent, but not shared across processes and lost on restart.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	DB       int
	Password string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold:        5,
			Duration:         15 * time.Minute,
			BlockIPOnLockout: true,
			IPBlockDuration:  15 * time.Minute,
		},
		Password: PasswordConfig{
			Hash:   password.DefaultHashConfig(),
			Policy: password.DefaultPolicyConfig(),
		},
		Limits: LimitsConfig{
			Login:   Limit{Max: 5, Window: time.Minute},
			Signup:  Limit{Max: 2, Window: time.Hour},
			API:     Limit{Max: 30, Window: time.Minute},
			Default: Limit{Max: 200, Window: 24 * time.Hour},
		},
		Session: SessionConfig{
			TTL:    30 * time.Minute,
			Issuer: "catguard",
			Leeway: 30 * time.Second,
		},
		EditWindow: EditWindowConfig{
			Window: 15 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Audit: AuditConfig{
			BufferSize: 64,
		},
	}
}

func normalizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Lockout.Threshold <= 0 {
		cfg.Lockout.Threshold = def.Lockout.Threshold
	}
	if cfg.Lockout.Duration <= 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}
	if cfg.Lockout.IPBlockDuration <= 0 {
		cfg.Lockout.IPBlockDuration = def.Lockout.IPBlockDuration
	}
	if cfg.Password.Hash == (password.HashConfig{}) {
		cfg.Password.Hash = def.Password.Hash
	}
	if cfg.Password.Policy == (password.PolicyConfig{}) {
		cfg.Password.Policy = def.Password.Policy
	}
	if cfg.Limits.Login.Max <= 0 {
		cfg.Limits.Login = def.Limits.Login
	}
	if cfg.Limits.Signup.Max <= 0 {
		cfg.Limits.Signup = def.Limits.Signup
	}
	if cfg.Limits.API.Max <= 0 {
		cfg.Limits.API = def.Limits.API
	}
	if cfg.Limits.Default.Max <= 0 {
		cfg.Limits.Default = def.Limits.Default
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = def.Session.TTL
	}
	if cfg.Session.Issuer == "" {
		cfg.Session.Issuer = def.Session.Issuer
	}
	if cfg.Session.Leeway <= 0 {
		cfg.Session.Leeway = def.Session.Leeway
	}
	if cfg.EditWindow.Window <= 0 {
		cfg.EditWindow.Window = def.EditWindow.Window
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = def.Redis.Addr
	}
	if cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if len(cfg.Session.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes")
	}
	for _, l := range []Limit{cfg.Limits.Login, cfg.Limits.Signup, cfg.Limits.API, cfg.Limits.Default} {
		if l.Window <= 0 {
			return errors.New("rate-limit windows must be positive")
		}
	}
	return nil
}

// ParseLimit reads the deployed limit-string grammar ("5 per minute",
// "200 per day", "1 per 30 seconds") into a [Limit].
func ParseLimit(s string) (Limit, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) < 3 || len(fields) > 4 || fields[1] != "per" {
		return Limit{}, fmt.Errorf("invalid limit string %q", s)
	}

	max, err := strconv.Atoi(fields[0])
	if err != nil || max <= 0 {
		return Limit{}, fmt.Errorf("invalid limit count in %q", s)
	}

	multiplier := 1
	unitField := fields[2]
	if len(fields) == 4 {
		multiplier, err = strconv.Atoi(fields[2])
		if err != nil || multiplier <= 0 {
			return Limit{}, fmt.Errorf("invalid window multiplier in %q", s)
		}
		unitField = fields[3]
	}

	var unit time.Duration
	switch strings.TrimSuffix(unitField, "s") {
	case "second":
		unit = time.Second
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return Limit{}, fmt.Errorf("invalid window unit in %q", s)
	}

	return Limit{Max: max, Window: time.Duration(multiplier) * unit}, nil
}

// ConfigFromEnv builds a config from the process environment, loading a
// .env file first when one exists. Unset variables keep their defaults;
// malformed values are reported rather than silently ignored.
//
// Recognized variables: RATELIMIT_LOGIN_LIMIT, RATELIMIT_SIGNUP_LIMIT,
// RATELIMIT_API_LIMIT, RATELIMIT_DEFAULT_LIMIT, LOCKOUT_THRESHOLD,
// LOCKOUT_DURATION_SECONDS, PASSWORD_MAX_AGE_DAYS, PASSWORD_HISTORY_SIZE,
// PASSWORD_MIN_LENGTH, PASSWORD_MIN_SCORE, SESSION_SECRET, REDIS_ENABLED,
// REDIS_ADDR, REDIS_DB, REDIS_PASSWORD.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	limits := []struct {
		env    string
		target *Limit
	}{
		{"RATELIMIT_LOGIN_LIMIT", &cfg.Limits.Login},
		{"RATELIMIT_SIGNUP_LIMIT", &cfg.Limits.Signup},
		{"RATELIMIT_API_LIMIT", &cfg.Limits.API},
		{"RATELIMIT_DEFAULT_LIMIT", &cfg.Limits.Default},
	}
	for _, l := range limits {
		if v := os.Getenv(l.env); v != "" {
			parsed, err := ParseLimit(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", l.env, err)
			}
			*l.target = parsed
		}
	}

	ints := []struct {
		env    string
		target *int
	}{
		{"LOCKOUT_THRESHOLD", &cfg.Lockout.Threshold},
		{"PASSWORD_MAX_AGE_DAYS", &cfg.Password.Policy.MaxAgeDays},
		{"PASSWORD_HISTORY_SIZE", &cfg.Password.Policy.HistorySize},
		{"PASSWORD_MIN_LENGTH", &cfg.Password.Policy.MinLength},
		{"PASSWORD_MIN_SCORE", &cfg.Password.Policy.MinScore},
		{"REDIS_DB", &cfg.Redis.DB},
	}
	for _, i := range ints {
		if v := os.Getenv(i.env); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: invalid integer %q", i.env, v)
			}
			*i.target = parsed
		}
	}

	if v := os.Getenv("LOCKOUT_DURATION_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("LOCKOUT_DURATION_SECONDS: invalid value %q", v)
		}
		cfg.Lockout.Duration = time.Duration(seconds) * time.Second
		cfg.Lockout.IPBlockDuration = cfg.Lockout.Duration
	}

	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Session.Secret = []byte(v)
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_ENABLED: invalid boolean %q", v)
		}
		cfg.Redis.Enabled = enabled
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	return cfg, nil
}
