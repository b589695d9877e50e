// Package audit dispatches account events (logins, silent refreshes,
// logouts, verification and reset steps) to a pluggable sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full
//     semantics and a drop counter.
//   - [Event]: timestamped record with user, session, IP and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Which events to emit is decided
// by the engine.
package audit
