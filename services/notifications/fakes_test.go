package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, *Notification) error {
	return fmt.Errorf("%w: connection refused", ErrQueueUnavailable)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n *Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, *n)
	return nil
}

func newTestNotificationUseCase(t *testing.T, publisher Publisher) (*NotificationUseCase, *MemoryDeliveryLog) {
	t.Helper()
	deliveries := NewMemoryDeliveryLog()
	return NewNotificationUseCase(deliveries, publisher, zaptest.NewLogger(t), otel.Tracer("test")), deliveries
}

func purchasedRequest() NotificationRequest {
	return NotificationRequest{
		Type:      TypeTicketPurchased,
		Recipient: "maria@example.com",
		Data: map[string]any{
			"ticketId":  "TKT-1A2B3C4D",
			"eventName": "Rock in Rio",
			"quantity":  2,
			"total":     500.0,
		},
	}
}
