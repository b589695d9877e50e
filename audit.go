package accounts

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/accounts/internal/audit"
)

// AuditEvent is one recorded account operation.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events on a buffered channel read with Events. When
// the channel is full the sink blocks the dispatcher, not the request path.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line. Write errors are ignored.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events at info, or warn for failures.
type SlogSink = internalaudit.SlogSink

// NewChannelSink returns a sink with room for buffer events (at least one).
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes to w. Writes are serialized, so w need not be
// safe for concurrent use.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink forwards audit events into l as structured records.
func NewSlogSink(l *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(l)
}
