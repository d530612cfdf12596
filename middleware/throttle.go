package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tyhsiao/catguard"
)

// Throttle enforces the general request budgets. The subject is the session
// subject when a guard already validated one, else the source IP. Rejected
// requests get 429 with Retry-After; every response carries the remaining
// budget in X-RateLimit-Remaining.
func Throttle(engine *catguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			id := catguard.IdentityFromIP(ip)
			if claims, ok := SessionFromContext(r.Context()); ok {
				id = catguard.IdentityFromAccount(claims.Subject, ip)
			}

			decision := engine.AllowRequest(r.Context(), id)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				if retry := time.Until(decision.ResetAt); retry > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+1)))
				}
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
