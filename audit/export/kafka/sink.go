package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	riskAuth "github.com/MrEthical07/riskAuth"
)

// MessageWriter is the part of *kafka.Writer used by [Sink].
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink is a riskAuth.AuditSink backed by a Kafka writer.
type Sink struct {
	writer MessageWriter
	topic  string
}

var _ riskAuth.AuditSink = (*Sink)(nil)

// NewSink connects to brokers and writes to topic with acks from all replicas.
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka audit sink requires a topic")
	}
	return NewSinkWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, ""), nil
}

// NewSinkWithWriter wraps an existing writer. topic is set on each message
// and must be empty when the writer already has one.
func NewSinkWithWriter(w MessageWriter, topic string) *Sink {
	return &Sink{writer: w, topic: topic}
}

// Emit writes one event. Errors are returned so the dispatcher retries.
func (s *Sink) Emit(ctx context.Context, event riskAuth.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
