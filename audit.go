package riskAuth

import (
	"io"

	internalaudit "github.com/MrEthical07/riskAuth/internal/audit"
)

// AuditEvent is one security-relevant record. ID is a ULID; sinks may see
// the same ID more than once and should de-duplicate on it.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events. Returning an error makes the Engine
// redeliver the event with backoff.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// AuditSeverity ranks events.
type AuditSeverity = internalaudit.Severity

const (
	AuditSeverityInfo     = internalaudit.SeverityInfo
	AuditSeverityWarning  = internalaudit.SeverityWarning
	AuditSeverityCritical = internalaudit.SeverityCritical
)

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel; tests and in-process consumers
// read them from Events.
type ChannelSink = internalaudit.ChannelSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// JSONWriterSink writes newline-delimited JSON events to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
