package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// DefaultCriticalTopic recebe os incidentes de pagamento capturado sem ingresso
const DefaultCriticalTopic = "purchases.critical-inconsistency"

// Escalator envia incidentes que exigem reconciliação manual
type Escalator interface {
	Escalate(ctx context.Context, incident CriticalIncident) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEscalator publica incidentes no tópico de dead-letter, chaveados pelo payment_id
type KafkaEscalator struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaEscalator(brokers []string, topic string, logger *zap.Logger) *KafkaEscalator {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaEscalator{writer: writer, logger: logger}
}

func (e *KafkaEscalator) Escalate(ctx context.Context, incident CriticalIncident) error {
	value, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to encode incident: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(incident.PaymentID),
		Value: value,
		Time:  incident.OccurredAt,
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish critical incident: %w", err)
	}

	e.logger.Error("🚨 [ESCALATION] Critical inconsistency sent to dead-letter topic",
		zap.String("payment_id", incident.PaymentID),
		zap.String("reservation_id", incident.ReservationID),
		zap.String("failed_step", incident.FailedStep))
	return nil
}

func (e *KafkaEscalator) Close() error {
	return e.writer.Close()
}

// headerCarrier adapta os headers da mensagem Kafka ao propagador W3C
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// LogEscalator registra o incidente apenas em log, usado quando não há brokers configurados
type LogEscalator struct {
	logger *zap.Logger
}

func NewLogEscalator(logger *zap.Logger) *LogEscalator {
	return &LogEscalator{logger: logger}
}

func (e *LogEscalator) Escalate(_ context.Context, incident CriticalIncident) error {
	e.logger.Error("🚨 [ESCALATION] Critical inconsistency requires manual reconciliation",
		zap.String("payment_id", incident.PaymentID),
		zap.String("reservation_id", incident.ReservationID),
		zap.String("user_id", incident.UserID),
		zap.Float64("amount", incident.Amount),
		zap.String("failed_step", incident.FailedStep),
		zap.String("reason", incident.Reason))
	return nil
}
