package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultQueueName = "notifications.outbound"

// Publisher coloca notificações na fila de entrega
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// Consumer entrega as mensagens da fila para handle até ctx ser cancelado
type Consumer interface {
	Run(ctx context.Context, handle func(context.Context, *Notification) error) error
}

// RabbitPublisher mantém uma conexão e reabre o canal quando ela cai
type RabbitPublisher struct {
	url    string
	queue  string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url, queue string, logger *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{url: url, queue: queue, logger: logger}
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("%w: dial: %v", ErrQueueUnavailable, err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: channel open: %v", ErrQueueUnavailable, err)
	}
	if _, err := declareQueue(ch, p.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrQueueUnavailable, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return q, fmt.Errorf("%w: queue declare: %v", ErrQueueUnavailable, err)
	}
	return q, nil
}

// RabbitConsumer consome a fila com ack manual e reconecta com backoff exponencial
type RabbitConsumer struct {
	url      string
	queue    string
	prefetch int
	logger   *zap.Logger
}

func NewRabbitConsumer(url, queue string, prefetch int, logger *zap.Logger) *RabbitConsumer {
	return &RabbitConsumer{url: url, queue: queue, prefetch: prefetch, logger: logger}
}

func (c *RabbitConsumer) Run(ctx context.Context, handle func(context.Context, *Notification) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second

	for {
		err := c.consume(ctx, handle, policy.Reset)
		if ctx.Err() != nil {
			return nil
		}

		wait := policy.NextBackOff()
		c.logger.Warn("⚠️ Notification consumer disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("retry_in", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *RabbitConsumer) consume(ctx context.Context, handle func(context.Context, *Notification) error, connected func()) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("Failed to set QoS", zap.Error(err))
	}
	if _, err := declareQueue(ch, c.queue); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	connected()
	c.logger.Info("📥 Notification consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

// dispatch rejeita sem requeue mensagens inválidas; falhas de entrega voltam para a fila uma vez
func (c *RabbitConsumer) dispatch(ctx context.Context, d amqp.Delivery, handle func(context.Context, *Notification) error) {
	var n Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		c.logger.Error("❌ Discarding malformed notification", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, &n); err != nil {
		c.logger.Error("❌ Notification delivery failed",
			zap.String("notification_id", n.ID),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

// MemoryQueue é uma fila em processo usada quando não há broker
type MemoryQueue struct {
	ch chan Notification
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Notification, size)}
}

func (q *MemoryQueue) Publish(ctx context.Context, n *Notification) error {
	select {
	case q.ch <- *n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: memory queue is full", ErrQueueUnavailable)
	}
}

func (q *MemoryQueue) Run(ctx context.Context, handle func(context.Context, *Notification) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-q.ch:
			_ = handle(ctx, &n)
		}
	}
}
