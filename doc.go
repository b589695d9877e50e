// Package accounts is the authentication core of a user-account backend:
// signup with email verification, password login issuing an access/refresh
// token pair carried in cookies, per-request authorization with silent
// access-token refresh, logout, and password reset.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// accounts is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] and [Mailer] integration interfaces, and value types
// ([User], [PublicUser], [TokenPair], [MetricsSnapshot]). Session lifecycle
// flows, the single-use token store and audit dispatch live under internal/.
// Cookies are written through [CookieWriter], so the engine never touches an
// http.ResponseWriter; the middleware package adapts it to net/http.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Store raw access, refresh or single-use token values.
//   - Import any sub-package that re-imports accounts (no import cycles).
//
// # Performance contract
//
// Authorize is the hot path. A valid access token costs one JWT verification
// and one user lookup. Silent refresh adds two Redis GETs and one Lua script.
// Password hashing runs under a bounded pool and never on an unbounded
// number of goroutines.
package accounts
