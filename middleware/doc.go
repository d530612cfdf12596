// Package middleware exposes HTTP adapters for the catguard engine: session
// guards for admin routes and a throttle for general request budgets.
//
// # Guards
//
//   - [RequireSession] rejects requests without a valid full-scope session.
//   - [RequirePasswordChangeSession] additionally admits restricted sessions
//     issued for a forced password rotation, for the change-password route.
//   - [Throttle] enforces the api/default request budgets and sets the
//     usual X-RateLimit response headers.
//
// Each guard reads the Authorization header, delegates to the engine, and
// injects the validated claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It does NOT make
// protection decisions itself; pass or reject comes from the engine.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to the engine).
//   - Touch the counter store (the engine handles I/O).
//   - Invent identity: the rate-limit subject is the session subject when
//     present, else the connection's source IP.
package middleware
