// Package middleware adapts accounts.Engine to net/http.
//
// [Guard] reads the session cookies, runs Engine.Authorize for the route's
// policy and attaches the resolved user to the request context. Cookie
// mutations produced by a silent refresh or a rejected session are written
// to the response through [HTTPCookies].
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or touch Redis itself.
package middleware
