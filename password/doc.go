// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// engine can re-hash on the next successful login.
//
// [Pool] bounds concurrent hash computations with a weighted semaphore; the
// engine never calls the hasher directly.
//
// This package owns hashing only. Password policy (length, character classes,
// entropy) is enforced by the HTTP gateway.
package password
