package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEscalator_PublishesIncidentKeyedByPayment(t *testing.T) {
	// Arrange
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	writer := &fakeWriter{}
	escalator := &KafkaEscalator{writer: writer, logger: zaptest.NewLogger(t)}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	incident := CriticalIncident{
		PaymentID:     "PAY-1A2B3C4D",
		ReservationID: "res-1",
		UserID:        "user-1",
		Amount:        250,
		FailedStep:    "issue-ticket",
		Reason:        "tickets: service unavailable",
		OccurredAt:    time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}

	// Act
	err := escalator.Escalate(ctx, incident)

	// Assert
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "PAY-1A2B3C4D", string(msg.Key))

	var decoded CriticalIncident
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, incident, decoded)

	carrier := headerCarrier{msg: &msg}
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", carrier.Get("traceparent"))
}

func TestKafkaEscalator_WriteFailure(t *testing.T) {
	writer := &fakeWriter{err: kafka.LeaderNotAvailable}
	escalator := &KafkaEscalator{writer: writer, logger: zaptest.NewLogger(t)}

	err := escalator.Escalate(context.Background(), CriticalIncident{PaymentID: "PAY-1"})

	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
	require.NoError(t, escalator.Close())
	assert.True(t, writer.closed)
}

func TestHeaderCarrier_SetReplacesExistingKey(t *testing.T) {
	msg := kafka.Message{}
	carrier := headerCarrier{msg: &msg}

	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Empty(t, carrier.Get("missing"))
}

func TestLogEscalator_NeverFails(t *testing.T) {
	escalator := NewLogEscalator(zaptest.NewLogger(t))

	assert.NoError(t, escalator.Escalate(context.Background(), CriticalIncident{PaymentID: "PAY-1"}))
}
