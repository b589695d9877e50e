// Package internal contains helpers private to the accounts module.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: process settings parsed from the environment
//   - flows: session lifecycle orchestrators used by the Engine
//   - logging: context-aware structured logger over log/slog
//   - stores: Redis-backed single-use token store
//
// This package itself provides the random token generator shared by refresh
// tokens and single-use tokens.
package internal
