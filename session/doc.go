// Package session provides the Redis-backed session store: one row per login
// binding an (access token, refresh token) pair to a user and a refresh expiry.
//
// # Layout
//
// Each session is a compact binary blob under <prefix>:<sessionID>, plus an
// index <prefix>:at:<hex sha256(access token)> pointing at the session ID.
// Raw token values are never written to Redis.
//
// # Refresh
//
// [Store.ReplaceAccessToken] swaps the access digest in place with a Lua
// script. In strict mode the script compares the stored digest with the one the
// caller read, so two requests racing on the same expired access token cannot
// both win; the loser gets [ErrAccessMismatch].
//
// This package does not interpret JWTs or decide policy; the engine does.
package session
