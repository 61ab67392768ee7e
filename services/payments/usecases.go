package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentUseCase contém a lógica de autorização com idempotência
type PaymentUseCase struct {
	repository PaymentRepository
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
	decisions  metric.Int64Counter
	replays    metric.Int64Counter
}

func NewPaymentUseCase(repository PaymentRepository, logger *zap.Logger, tracer trace.Tracer) *PaymentUseCase {
	meter := otel.Meter("payments-service")
	decisions, _ := meter.Int64Counter("payment_decisions_total")
	replays, _ := meter.Int64Counter("payment_idempotent_replays_total")

	return &PaymentUseCase{
		repository: repository,
		now:        time.Now,
		logger:     logger,
		tracer:     tracer,
		decisions:  decisions,
		replays:    replays,
	}
}

// Authorize decide o pagamento. Com idempotency key, a chave é bloqueada dentro da
// transação e uma tentativa já registrada é devolvida sem nova decisão (replayed=true).
func (uc *PaymentUseCase) Authorize(ctx context.Context, req AuthorizeRequest) (*PaymentAttempt, bool, error) {
	ctx, span := uc.tracer.Start(ctx, "payment.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("idempotency_key", req.IdempotencyKey),
		attribute.Float64("amount", req.Amount),
	)

	uc.logger.Info("💳 [AUTHORIZE] Processing payment",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Float64("amount", req.Amount),
		zap.String("card", "****"+lastFour(req.CardNumber)))

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if req.IdempotencyKey != "" {
		if err := uc.repository.LockIdempotencyKey(ctx, tx, req.IdempotencyKey); err != nil {
			return nil, false, err
		}

		existing, err := uc.repository.GetByIdempotencyKey(ctx, tx, req.IdempotencyKey)
		switch {
		case err == nil:
			uc.replays.Add(ctx, 1)
			uc.logger.Info("♻️ [IDEMPOTENCY] Duplicate payment, returning stored result",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("payment_id", existing.PaymentID),
				zap.String("status", string(existing.Status)))
			return existing, true, nil
		case !errors.Is(err, ErrPaymentNotFound):
			return nil, false, err
		}
	}

	payment := NewPaymentAttempt(req, uc.now())
	if err := uc.repository.CreatePayment(ctx, tx, payment); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit payment: %w", err)
	}

	uc.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(payment.Status))))
	if payment.Status == StatusApproved {
		uc.logger.Info("✅ [AUTHORIZE] Payment approved",
			zap.String("payment_id", payment.PaymentID),
			zap.Float64("amount", payment.Amount))
	} else {
		uc.logger.Warn("❌ [AUTHORIZE] Payment rejected",
			zap.String("payment_id", payment.PaymentID),
			zap.String("reason", payment.Message))
	}
	return payment, false, nil
}

func (uc *PaymentUseCase) GetPayment(ctx context.Context, paymentID string) (*PaymentAttempt, error) {
	return uc.repository.GetPayment(ctx, paymentID)
}
