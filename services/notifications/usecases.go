package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NotificationUseCase aceita notificações, enfileira e entrega
type NotificationUseCase struct {
	deliveries DeliveryLog
	publisher  Publisher
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
	outcomes   metric.Int64Counter
}

func NewNotificationUseCase(deliveries DeliveryLog, publisher Publisher, logger *zap.Logger, tracer trace.Tracer) *NotificationUseCase {
	meter := otel.Meter("notifications-service")
	outcomes, _ := meter.Int64Counter("notifications_total")

	return &NotificationUseCase{
		deliveries: deliveries,
		publisher:  publisher,
		now:        time.Now,
		logger:     logger,
		tracer:     tracer,
		outcomes:   outcomes,
	}
}

// Enqueue registra a notificação como QUEUED e publica na fila.
// Se a publicação falha o registro fica FAILED e o erro volta para o handler.
func (uc *NotificationUseCase) Enqueue(ctx context.Context, req NotificationRequest) (*Receipt, error) {
	ctx, span := uc.tracer.Start(ctx, "notification.Enqueue")
	defer span.End()

	n := NewNotification(req, uc.now())
	span.SetAttributes(
		attribute.String("notification_id", n.ID),
		attribute.String("type", string(n.Type)),
	)

	if err := uc.deliveries.Record(ctx, n); err != nil {
		return nil, err
	}

	if err := uc.publisher.Publish(ctx, n); err != nil {
		uc.logger.Error("❌ Failed to enqueue notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		uc.record(ctx, n, StatusFailed)
		if markErr := uc.deliveries.MarkStatus(context.WithoutCancel(ctx), n.ID, StatusFailed, err.Error(), uc.now()); markErr != nil {
			uc.logger.Warn("Failed to mark notification as failed", zap.Error(markErr))
		}
		return nil, err
	}

	uc.record(ctx, n, StatusQueued)
	uc.logger.Info("📨 Notification queued",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("recipient", n.Recipient))
	return &Receipt{NotificationID: n.ID, Status: StatusQueued}, nil
}

// Deliver simula o envio do email em log e marca a notificação como SENT
func (uc *NotificationUseCase) Deliver(ctx context.Context, n *Notification) error {
	ctx, span := uc.tracer.Start(ctx, "notification.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("notification_id", n.ID))

	uc.logger.Info("📧 [EMAIL] "+n.Subject(),
		zap.String("notification_id", n.ID),
		zap.String("to", n.Recipient),
		zap.String("type", string(n.Type)),
		zap.String("summary", n.Summary()))

	if err := uc.deliveries.MarkStatus(ctx, n.ID, StatusSent, "", uc.now()); err != nil {
		return err
	}
	uc.record(ctx, n, StatusSent)
	return nil
}

func (uc *NotificationUseCase) Get(ctx context.Context, id string) (*Notification, error) {
	return uc.deliveries.Get(ctx, id)
}

func (uc *NotificationUseCase) record(ctx context.Context, n *Notification, status DeliveryStatus) {
	uc.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(n.Type)),
		attribute.String("status", string(status)),
	))
}
