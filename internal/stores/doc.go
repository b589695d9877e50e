// Package stores provides the Redis-backed store for single-use tokens
// (account verification and password reset).
//
// # Design
//
// Each (user, kind) pair owns one versioned binary record under an owner key,
// and each live token value has a lookup key pointing back at the owner.
// Upsert and Delete run as WATCH/MULTI optimistic transactions with bounded
// retry, so regenerating a token atomically retires the previous value.
// Token values are stored as SHA-256 digests and compared in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control only. It does not
// generate token values or decide whether an expired record is acceptable;
// the engine supplies both the value and the clock.
package stores
