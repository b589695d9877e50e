// Package flows holds the session lifecycle logic of the accounts engine:
// issuing a session at login, the silent refresh performed by the guard,
// the access/refresh extraction decision and logout.
//
// # Architecture boundaries
//
// Flows receive everything they touch through Deps structs built once by the
// root Engine. They do not own the session store, the JWT manager or the
// clock; ownership stays with the Engine.
//
// Each Run function returns a result struct with a failure kind instead of a
// root-package error, so the Engine maps failures onto its own sentinels,
// metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import accounts (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through dependency interfaces.
package flows
