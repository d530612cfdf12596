// Package editwindow grants anonymous record creators a short-lived right to
// edit or delete their own entries, keyed by an opaque per-browser-session
// token assigned at creation time. There is no stored grant: validity is a
// pure function of the record's creation time and owner token.
package editwindow

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is how long a freshly created record stays editable.
const DefaultWindow = 15 * time.Minute

// Record is the minimal view of a mutable entry: when it was created and
// which session token owns it.
type Record struct {
	CreatedAt  time.Time
	OwnerToken string
}

// Authorizer checks mutation rights against the configured window.
type Authorizer struct {
	window time.Duration
}

// New creates an authorizer. A non-positive window falls back to
// [DefaultWindow].
func New(window time.Duration) *Authorizer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Authorizer{window: window}
}

// Window returns the configured mutation window.
func (a *Authorizer) Window() time.Duration { return a.window }

// CanMutate reports whether the requester may edit or delete the record at
// the given instant. A record with no owner token is never mutable, even
// inside the window, and token comparison is constant-time.
func (a *Authorizer) CanMutate(record Record, requesterToken string, now time.Time) bool {
	if record.OwnerToken == "" || requesterToken == "" {
		return false
	}
	if record.CreatedAt.IsZero() || now.Sub(record.CreatedAt) > a.window {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(record.OwnerToken), []byte(requesterToken)) == 1
}

// NewOwnerToken mints an opaque token for a freshly created record. Callers
// that already track a per-browser session identifier should use that
// instead; this helper serves apps without their own session layer.
func NewOwnerToken() string {
	return uuid.NewString()
}
