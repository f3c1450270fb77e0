// Package kafka ships riskAuth audit events to a Kafka topic.
//
// Events are JSON encoded and keyed by user ID, so one user's events land
// on one partition in order. The event ULID travels as a header for
// consumer-side de-duplication of redelivered events.
package kafka
