package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskAuth "github.com/MrEthical07/riskAuth"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSinkWritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewSinkWithWriter(w, "riskauth.audit")

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	event := riskAuth.AuditEvent{
		ID:        "01JNZ8Q6W3YB5E0GQ3ZC1V8K2M",
		Timestamp: at,
		EventType: "refresh_reuse_detected",
		Severity:  riskAuth.AuditSeverityCritical,
		UserID:    "u1",
		SessionID: "s1",
	}
	require.NoError(t, sink.Emit(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "riskauth.audit", msg.Topic)
	assert.Equal(t, []byte("u1"), msg.Key)
	assert.Equal(t, at, msg.Time)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event_id", Value: []byte(event.ID)})
	assert.Contains(t, msg.Headers, kafka.Header{Key: "severity", Value: []byte("critical")})

	var decoded riskAuth.AuditEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.SessionID, decoded.SessionID)
	assert.Equal(t, event.EventType, decoded.EventType)
}

func TestSinkSurfacesWriteErrors(t *testing.T) {
	boom := errors.New("leader not available")
	sink := NewSinkWithWriter(&fakeWriter{err: boom}, "")
	err := sink.Emit(context.Background(), riskAuth.AuditEvent{ID: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestNewSinkValidates(t *testing.T) {
	_, err := NewSink(nil, "topic")
	assert.Error(t, err)
	_, err = NewSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	sink, err := NewSink([]string{"localhost:9092"}, "riskauth.audit")
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}

func TestSinkClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewSinkWithWriter(w, "t").Close())
	assert.True(t, w.closed)
}
