// Package audit implements async, at-least-once event delivery for
// security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op, Kafka in audit/export/kafka).
//   - [Dispatcher]: buffered relay that retries failed deliveries with exponential backoff.
//   - [Event]: structured audit record with a ULID, timestamp, type, severity, user, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import riskAuth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
