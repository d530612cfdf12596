// Package jwt issues and validates the short-lived admin session token
// returned by a successful login. Tokens are HS256-signed; the restricted
// password-change scope marks a session that may only reach the forced
// change-password flow.
package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Scope values carried in session tokens.
const (
	// ScopeFull grants normal admin session privileges.
	ScopeFull = "admin"
	// ScopePasswordChange restricts the session to the password-change
	// flow; it is issued when an expired password forces a rotation.
	ScopePasswordChange = "pwd_change"
)

var (
	// ErrTokenInvalid covers malformed, mis-signed, and expired tokens.
	ErrTokenInvalid = errors.New("invalid session token")
)

// Config holds signing parameters.
type Config struct {
	// Secret is the HS256 signing key. Required, minimum 32 bytes.
	Secret []byte
	// TTL bounds the session lifetime.
	TTL time.Duration
	// Issuer is stamped into and required from every token.
	Issuer string
	// Leeway tolerates clock skew during validation.
	Leeway time.Duration
}

// SessionClaims is the decoded token payload.
type SessionClaims struct {
	Scope string `json:"scope"`
	jwtlib.RegisteredClaims
}

// Manager signs and parses session tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the config and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// WithClock overrides the time source. Tests use it to cross expiry
// boundaries without sleeping.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue signs a token for the given subject and scope.
func (m *Manager) Issue(subject, scope string) (string, error) {
	now := m.now()
	claims := SessionClaims{
		Scope: scope,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Parse validates signature, expiry, and issuer, and returns the claims.
func (m *Manager) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwtlib.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwtlib.Token) (any, error) {
			if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return m.config.Secret, nil
		},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(m.config.Issuer),
		jwtlib.WithLeeway(m.config.Leeway),
		jwtlib.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
