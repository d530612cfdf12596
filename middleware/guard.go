package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/tyhsiao/catguard"
	"github.com/tyhsiao/catguard/jwt"
)

type sessionContextKey struct{}

// SessionFromContext returns the claims injected by a session guard.
func SessionFromContext(ctx context.Context) (*jwt.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionContextKey{}).(*jwt.SessionClaims)
	return claims, ok
}

// RequireSession admits only full-scope admin sessions. Sessions restricted
// to the password-change flow are rejected here and must use
// [RequirePasswordChangeSession] routes.
func RequireSession(engine *catguard.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(scope string) bool {
		return scope == jwt.ScopeFull
	})
}

// RequirePasswordChangeSession admits both full-scope sessions and the
// restricted sessions issued when an expired password forces a rotation.
// Only the change-password route should use it.
func RequirePasswordChangeSession(engine *catguard.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(scope string) bool {
		return scope == jwt.ScopeFull || scope == jwt.ScopePasswordChange
	})
}

func guard(engine *catguard.Engine, scopeOK func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateSession(token)
			if err != nil || !scopeOK(claims.Scope) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP extracts the connection's source IP. Proxy headers are ignored;
// deployments behind a trusted proxy should terminate it before this layer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
