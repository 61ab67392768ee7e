package main

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/inventory"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/notification"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/payment"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/tickets"
)

// Catalog lê tipos de entrada e eventos
type Catalog interface {
	GetTicketType(ctx context.Context, id int64) (*inventory.TicketType, error)
	GetEvent(ctx context.Context, id int64) (*inventory.Event, error)
}

// Reservations é o motor de reservas temporárias
type Reservations interface {
	CreateReservation(ctx context.Context, ticketTypeID int64, userID string, quantity int) (*tickets.Reservation, error)
	ConfirmReservation(ctx context.Context, id string) (*tickets.Reservation, error)
	ReleaseReservation(ctx context.Context, id string) (*tickets.Reservation, error)
}

// Payments autoriza pagamentos (retry e circuit breaker ficam no cliente)
type Payments interface {
	Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Result, error)
}

// TicketIssuer emite o ingresso (idempotente por payment_id) e consulta o ingresso de um pagamento
type TicketIssuer interface {
	IssueTicket(ctx context.Context, req tickets.IssueRequest) (*tickets.Ticket, error)
	GetTicketByPayment(ctx context.Context, paymentID string) (*tickets.Ticket, error)
}

// Notifier envia notificações sem devolver erro
type Notifier interface {
	Send(ctx context.Context, n notification.Notification)
}

// PurchaseUseCase orquestra a saga de compra
type PurchaseUseCase struct {
	catalog             Catalog
	reservations        Reservations
	payments            Payments
	issuer              TicketIssuer
	notifier            Notifier
	escalator           Escalator
	compensationTimeout time.Duration
	inflight            singleflight.Group
	now                 func() time.Time
	logger              *zap.Logger
	tracer              trace.Tracer
	outcomes            metric.Int64Counter
}

func NewPurchaseUseCase(
	catalog Catalog,
	reservations Reservations,
	payments Payments,
	issuer TicketIssuer,
	notifier Notifier,
	escalator Escalator,
	compensationTimeout time.Duration,
	logger *zap.Logger,
	tracer trace.Tracer,
) *PurchaseUseCase {
	meter := otel.Meter("orchestration-service")
	outcomes, _ := meter.Int64Counter("purchase_saga_outcomes_total")

	if compensationTimeout <= 0 {
		compensationTimeout = DefaultCompensationTimeout
	}

	return &PurchaseUseCase{
		catalog:             catalog,
		reservations:        reservations,
		payments:            payments,
		issuer:              issuer,
		notifier:            notifier,
		escalator:           escalator,
		compensationTimeout: compensationTimeout,
		now:                 time.Now,
		logger:              logger,
		tracer:              tracer,
		outcomes:            outcomes,
	}
}

// PurchaseTicket executa a saga. Chamadas concorrentes com a mesma idempotency key
// compartilham uma única execução neste processo.
func (uc *PurchaseUseCase) PurchaseTicket(ctx context.Context, cmd PurchaseCommand) (*TicketReceipt, error) {
	if cmd.IdempotencyKey == "" {
		return uc.run(ctx, cmd, "saga-"+uuid.NewString())
	}

	v, err, shared := uc.inflight.Do(cmd.UserID+"|"+cmd.IdempotencyKey, func() (any, error) {
		return uc.run(context.WithoutCancel(ctx), cmd, paymentKey(cmd.UserID, cmd.IdempotencyKey))
	})
	if shared {
		uc.logger.Info("♻️ [SAGA] Joined in-flight purchase with the same idempotency key",
			zap.String("idempotency_key", cmd.IdempotencyKey))
	}
	if err != nil {
		return nil, err
	}
	return v.(*TicketReceipt), nil
}

// paymentKey isola a chave do cliente por usuário; o gateway indexa chaves globalmente
func paymentKey(userID, key string) string {
	return userID + ":" + key
}

func (uc *PurchaseUseCase) run(ctx context.Context, cmd PurchaseCommand, idempotencyKey string) (receipt *TicketReceipt, err error) {
	ctx, span := uc.tracer.Start(ctx, "saga.PurchaseTicket")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", cmd.UserID),
		attribute.Int64("ticket_type_id", cmd.TicketTypeID),
		attribute.Int("quantity", cmd.Quantity),
	)

	saga := NewSagaRun(cmd, idempotencyKey)
	defer func() { uc.finish(ctx, span, saga, err) }()

	uc.logger.Info("🛒 [SAGA] Starting ticket purchase",
		zap.String("user_id", cmd.UserID),
		zap.Int64("ticket_type_id", cmd.TicketTypeID),
		zap.Int("quantity", cmd.Quantity))

	if cmd.Quantity <= 0 {
		return nil, newPurchaseError(KindValidation, "quantity must be positive", nil)
	}

	// Passos 1 e 2: catálogo (somente leitura, nada a compensar)
	if err := uc.loadCatalog(ctx, saga); err != nil {
		return nil, err
	}

	// Passo 3: reserva temporária
	if err := uc.reserve(ctx, saga); err != nil {
		return nil, err
	}

	// Passo 4: pagamento
	result, err := uc.authorize(ctx, saga)
	if err != nil {
		return nil, err
	}

	// Pagamento já decidido antes para esta chave
	if result.Replayed {
		existing, err := uc.resumeReplayed(ctx, saga, result)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return uc.receipt(saga, existing), nil
		}
	}

	// Passo 5: confirmação e emissão
	ticket, err := uc.confirmAndIssue(ctx, saga)
	if err != nil {
		return nil, err
	}

	// Passo 6: notificação (best effort)
	uc.notifyPurchased(ctx, saga, ticket)

	return uc.receipt(saga, ticket), nil
}

func (uc *PurchaseUseCase) loadCatalog(ctx context.Context, saga *SagaRun) error {
	cmd := saga.Command

	tt, err := uc.catalog.GetTicketType(ctx, cmd.TicketTypeID)
	if err != nil {
		return catalogError("ticket type", err)
	}
	if !tt.Active || tt.AvailableQty < cmd.Quantity {
		uc.logger.Warn("❌ [SAGA] Not enough tickets available",
			zap.Int64("ticket_type_id", tt.ID),
			zap.Bool("active", tt.Active),
			zap.Int("available", tt.AvailableQty),
			zap.Int("requested", cmd.Quantity))
		return newPurchaseError(KindInsufficientStock, "not enough tickets available", nil)
	}

	ev, err := uc.catalog.GetEvent(ctx, tt.EventID)
	if err != nil {
		return catalogError("event", err)
	}

	saga.TicketTypeName = tt.Name
	saga.UnitPrice = tt.Price
	saga.EventName = ev.Name
	saga.EventDate = ev.Date
	saga.Total = math.Round(tt.Price*float64(cmd.Quantity)*100) / 100

	uc.logger.Info("✅ [SAGA] Catalog loaded",
		zap.String("event", ev.Name),
		zap.String("ticket_type", tt.Name),
		zap.Float64("unit_price", tt.Price),
		zap.Float64("total", saga.Total))
	return nil
}

func catalogError(what string, err error) *PurchaseError {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return newPurchaseError(KindNotFound, what+" not found", err)
	default:
		return newPurchaseError(KindServiceUnavailable, "inventory service unavailable", err)
	}
}

func (uc *PurchaseUseCase) reserve(ctx context.Context, saga *SagaRun) error {
	cmd := saga.Command

	res, err := uc.reservations.CreateReservation(ctx, cmd.TicketTypeID, cmd.UserID, cmd.Quantity)
	if err != nil {
		uc.logger.Warn("❌ [SAGA] Reservation failed", zap.Error(err))
		if errors.Is(err, tickets.ErrInsufficientStock) {
			return newPurchaseError(KindInsufficientStock, "not enough tickets available", err)
		}
		return newPurchaseError(KindServiceUnavailable, "reservation service unavailable", err)
	}

	saga.ReservationID = res.ID
	saga.Compensations.Push("release-reservation", func(ctx context.Context) error {
		_, err := uc.reservations.ReleaseReservation(ctx, res.ID)
		return err
	})

	uc.logger.Info("🔒 [SAGA] Reservation created",
		zap.String("reservation_id", res.ID),
		zap.Time("expires_at", res.ExpiresAt))
	return nil
}

func (uc *PurchaseUseCase) authorize(ctx context.Context, saga *SagaRun) (*payment.Result, error) {
	pm := saga.Command.PaymentMethod

	result, err := uc.payments.Authorize(ctx, payment.AuthorizeRequest{
		IdempotencyKey: saga.IdempotencyKey,
		Amount:         saga.Total,
		CardNumber:     pm.CardNumber,
		CVV:            pm.CVV,
		ExpiryDate:     pm.ExpiryDate,
		CardHolder:     pm.CardHolder,
	})
	if err != nil {
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindPaymentError, "payment could not be processed", err))
	}

	saga.PaymentID = result.PaymentID

	switch result.Status {
	case payment.StatusApproved:
		uc.logger.Info("💳 [SAGA] Payment approved",
			zap.String("payment_id", result.PaymentID),
			zap.Int("attempts", result.Attempts),
			zap.Bool("replayed", result.Replayed))
		return result, nil

	case payment.StatusRejected:
		uc.logger.Warn("❌ [SAGA] Payment rejected",
			zap.String("payment_id", result.PaymentID),
			zap.String("reason", result.Message))
		uc.compensate(ctx, saga)
		uc.notifyRejected(ctx, saga, result.Message)
		return nil, uc.withIDs(saga, newPurchaseError(KindPaymentRejected, result.Message, nil))

	case payment.StatusServiceUnavailable:
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindServiceUnavailable, result.Message, nil))

	default:
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindPaymentError, "unexpected payment status "+string(result.Status), nil))
	}
}

func (uc *PurchaseUseCase) confirmAndIssue(ctx context.Context, saga *SagaRun) (*tickets.Ticket, error) {
	if _, err := uc.reservations.ConfirmReservation(ctx, saga.ReservationID); err != nil {
		return nil, uc.critical(ctx, saga, "confirm-reservation", err)
	}
	uc.logger.Info("✅ [SAGA] Reservation confirmed", zap.String("reservation_id", saga.ReservationID))

	ticket, err := uc.issue(ctx, saga)
	if err != nil {
		return nil, uc.critical(ctx, saga, "issue-ticket", err)
	}
	return ticket, nil
}

func (uc *PurchaseUseCase) issue(ctx context.Context, saga *SagaRun) (*tickets.Ticket, error) {
	cmd := saga.Command
	ticket, err := uc.issuer.IssueTicket(ctx, tickets.IssueRequest{
		UserID:         cmd.UserID,
		TicketTypeID:   cmd.TicketTypeID,
		EventName:      saga.EventName,
		TicketTypeName: saga.TicketTypeName,
		Quantity:       cmd.Quantity,
		UnitPrice:      saga.UnitPrice,
		PaymentID:      saga.PaymentID,
	})
	if err != nil {
		return nil, err
	}
	saga.TicketID = ticket.TicketID
	uc.logger.Info("🎫 [SAGA] Ticket issued",
		zap.String("ticket_id", ticket.TicketID),
		zap.Float64("total", ticket.Total))
	return ticket, nil
}

// resumeReplayed trata um pagamento devolvido pela idempotência do gateway. Se o pagamento já gerou
// um ingresso desta mesma compra, a reserva desta execução é liberada e o ingresso é devolvido.
// Sem ingresso a saga segue normalmente com a reserva desta execução (retorno nil, nil).
func (uc *PurchaseUseCase) resumeReplayed(ctx context.Context, saga *SagaRun, result *payment.Result) (*tickets.Ticket, error) {
	cmd := saga.Command

	if math.Abs(result.Amount-saga.Total) > 0.005 {
		uc.logger.Warn("❌ [SAGA] Idempotency key reused with a different amount",
			zap.String("payment_id", saga.PaymentID),
			zap.Float64("paid", result.Amount),
			zap.Float64("total", saga.Total))
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindIdempotencyConflict, "idempotency key already used for a different purchase", nil))
	}

	existing, err := uc.issuer.GetTicketByPayment(ctx, saga.PaymentID)
	switch {
	case errors.Is(err, tickets.ErrTicketNotFound):
		uc.logger.Info("♻️ [SAGA] Replayed payment has no ticket yet, continuing with this reservation",
			zap.String("payment_id", saga.PaymentID),
			zap.String("reservation_id", saga.ReservationID))
		return nil, nil
	case err != nil:
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindServiceUnavailable, "ticket service unavailable", err))
	}

	if existing.UserID != cmd.UserID || existing.TicketTypeID != cmd.TicketTypeID || existing.Quantity != cmd.Quantity {
		uc.logger.Warn("❌ [SAGA] Replayed payment belongs to a different purchase",
			zap.String("payment_id", saga.PaymentID),
			zap.String("ticket_id", existing.TicketID))
		uc.compensate(ctx, saga)
		return nil, uc.withIDs(saga, newPurchaseError(KindIdempotencyConflict, "idempotency key already used for a different purchase", nil))
	}

	uc.logger.Info("♻️ [SAGA] Purchase already completed for this idempotency key, releasing duplicate reservation",
		zap.String("payment_id", saga.PaymentID),
		zap.String("ticket_id", existing.TicketID),
		zap.String("reservation_id", saga.ReservationID))
	uc.compensate(ctx, saga)
	saga.TicketID = existing.TicketID
	return existing, nil
}

// critical trata falhas depois do pagamento aprovado: compensa o possível, escala e
// devolve CRITICAL_INCONSISTENCY com o payment_id para reconciliação.
func (uc *PurchaseUseCase) critical(ctx context.Context, saga *SagaRun, step string, cause error) error {
	uc.logger.Error("🚨 [SAGA] Failure after payment approval",
		zap.String("step", step),
		zap.String("payment_id", saga.PaymentID),
		zap.String("reservation_id", saga.ReservationID),
		zap.Error(cause))

	compErr := uc.compensate(ctx, saga)

	incident := CriticalIncident{
		PaymentID:      saga.PaymentID,
		ReservationID:  saga.ReservationID,
		UserID:         saga.Command.UserID,
		TicketTypeID:   saga.Command.TicketTypeID,
		Quantity:       saga.Command.Quantity,
		Amount:         saga.Total,
		IdempotencyKey: saga.IdempotencyKey,
		FailedStep:     step,
		Reason:         cause.Error(),
		OccurredAt:     uc.now(),
	}
	if compErr != nil {
		incident.CompensationError = compErr.Error()
	}

	escalateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.compensationTimeout)
	defer cancel()
	if err := uc.escalator.Escalate(escalateCtx, incident); err != nil {
		uc.logger.Error("❌ [SAGA] Failed to escalate critical inconsistency",
			zap.String("payment_id", saga.PaymentID),
			zap.Error(err))
	}

	return uc.withIDs(saga, newPurchaseError(KindCriticalInconsistency,
		"payment captured but ticket was not issued, payment "+saga.PaymentID+" requires reconciliation", cause))
}

func (uc *PurchaseUseCase) compensate(ctx context.Context, saga *SagaRun) error {
	return saga.Compensations.Run(ctx, uc.compensationTimeout, uc.logger)
}

func (uc *PurchaseUseCase) withIDs(saga *SagaRun, err *PurchaseError) *PurchaseError {
	err.PaymentID = saga.PaymentID
	err.ReservationID = saga.ReservationID
	return err
}

func (uc *PurchaseUseCase) notifyPurchased(ctx context.Context, saga *SagaRun, ticket *tickets.Ticket) {
	if saga.Command.UserEmail == "" {
		return
	}
	uc.notifier.Send(context.WithoutCancel(ctx), notification.Notification{
		Type:      notification.TypeTicketPurchased,
		Recipient: saga.Command.UserEmail,
		Data: map[string]any{
			"ticketId":       ticket.TicketID,
			"eventName":      saga.EventName,
			"eventDate":      saga.EventDate.Format(time.RFC3339),
			"ticketTypeName": saga.TicketTypeName,
			"quantity":       ticket.Quantity,
			"total":          ticket.Total,
		},
	})
}

func (uc *PurchaseUseCase) notifyRejected(ctx context.Context, saga *SagaRun, reason string) {
	if saga.Command.UserEmail == "" {
		return
	}
	uc.notifier.Send(context.WithoutCancel(ctx), notification.Notification{
		Type:      notification.TypePaymentRejected,
		Recipient: saga.Command.UserEmail,
		Data: map[string]any{
			"eventName": saga.EventName,
			"amount":    saga.Total,
			"reason":    reason,
		},
	})
}

func (uc *PurchaseUseCase) receipt(saga *SagaRun, ticket *tickets.Ticket) *TicketReceipt {
	return &TicketReceipt{
		TicketID:       ticket.TicketID,
		ReservationID:  saga.ReservationID,
		PaymentID:      saga.PaymentID,
		UserID:         saga.Command.UserID,
		EventName:      saga.EventName,
		EventDate:      saga.EventDate,
		TicketTypeName: saga.TicketTypeName,
		Quantity:       ticket.Quantity,
		UnitPrice:      ticket.UnitPrice,
		Total:          ticket.Total,
		Status:         ticket.Status,
		PurchasedAt:    ticket.CreatedAt,
	}
}

func (uc *PurchaseUseCase) finish(ctx context.Context, span trace.Span, saga *SagaRun, err error) {
	outcome := "SUCCESS"
	var perr *PurchaseError
	if errors.As(err, &perr) {
		outcome = string(perr.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(perr.Kind))
	}
	uc.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		uc.logger.Warn("✗ [SAGA] Purchase failed",
			zap.String("outcome", outcome),
			zap.String("reservation_id", saga.ReservationID),
			zap.String("payment_id", saga.PaymentID),
			zap.Error(err))
		return
	}
	uc.logger.Info("🎉 [SAGA] Purchase completed",
		zap.String("ticket_id", saga.TicketID),
		zap.String("reservation_id", saga.ReservationID),
		zap.String("payment_id", saga.PaymentID),
		zap.Float64("total", saga.Total))
}
