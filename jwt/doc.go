// Package jwt issues and verifies the short-lived access tokens carried in the
// access cookie. Tokens are HS256-signed and carry sub, exp, iat and jti.
//
// Verify distinguishes an expired token ([ErrTokenExpired]) from every other
// failure ([ErrTokenInvalid]); the guard treats both as "no payload" but only
// attempts a silent refresh when a refresh cookie is present.
package jwt
