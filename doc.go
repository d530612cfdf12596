// Package catguard protects a single-admin web application against
// credential-stuffing and brute-force attacks. It bundles the account lockout
// state machine, the password policy engine (strength, history, expiry), a
// fixed-window request rate limiter with an IP block list, and the time-boxed
// edit-window check for anonymously created records.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// catguard is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types. All internal coordination (counter
// storage, rate limiting, lockout tracking, audit dispatch) lives under
// internal/ and is never exported. Password policy and the edit-window check
// are standalone subpackages usable without an Engine.
//
// # What this package must NOT do
//
//   - Render HTML, touch templates, or format output for display.
//   - Own account persistence: [AccountStore] is a collaborator interface
//     implemented by the host application.
//   - Expose the Redis client or counter-store internals in its public API.
//
// # Availability contract
//
// Rate limiting and IP blocking fail open when the counter store is
// unreachable (one retry, then permit). Lockout tracking fails closed: a
// login is rejected when the account store cannot be read or written, since
// skipping the lockout invariant is never safe.
package catguard
