package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StockService é o estoque remoto mantido pelo serviço de inventário
type StockService interface {
	DecreaseStock(ctx context.Context, ticketTypeID int64, quantity int) error
	IncreaseStock(ctx context.Context, ticketTypeID int64, quantity int) error
}

// ReservationUseCase implementa o bloqueio temporário de estoque.
// Toda transição acontece com a linha da reserva bloqueada, então o job de expiração
// e uma liberação explícita nunca devolvem o estoque duas vezes.
type ReservationUseCase struct {
	repository  ReservationRepository
	stock       StockService
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// NewReservationUseCase cria o caso de uso; ttl <= 0 usa DefaultReservationTTL
func NewReservationUseCase(
	repository ReservationRepository,
	stock StockService,
	ttl time.Duration,
	logger *zap.Logger,
	tracer trace.Tracer,
) *ReservationUseCase {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	transitions, _ := otel.Meter("tickets-service").Int64Counter("reservation_transitions_total")

	return &ReservationUseCase{
		repository:  repository,
		stock:       stock,
		ttl:         ttl,
		now:         time.Now,
		logger:      logger,
		tracer:      tracer,
		transitions: transitions,
	}
}

// Create decrementa o estoque remoto e grava a reserva ACTIVE.
// Se a gravação local falhar, o estoque é devolvido antes de retornar o erro.
func (uc *ReservationUseCase) Create(ctx context.Context, req CreateReservationRequest) (*Reservation, error) {
	ctx, span := uc.tracer.Start(ctx, "reservation.Create")
	defer span.End()

	if req.Quantity <= 0 || req.UserID == "" {
		return nil, fmt.Errorf("%w: quantity must be positive and user_id is required", ErrInvalidRequest)
	}

	span.SetAttributes(
		attribute.Int64("ticket_type_id", req.TicketTypeID),
		attribute.Int("quantity", req.Quantity),
	)
	uc.logger.Info("➡️ [RESERVE] Creating reservation",
		zap.Int64("ticket_type_id", req.TicketTypeID),
		zap.String("user_id", req.UserID),
		zap.Int("quantity", req.Quantity))

	if err := uc.stock.DecreaseStock(ctx, req.TicketTypeID, req.Quantity); err != nil {
		uc.logger.Warn("❌ [RESERVE] Stock not available",
			zap.Int64("ticket_type_id", req.TicketTypeID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	}

	res := NewReservation(req.TicketTypeID, req.UserID, req.Quantity, uc.now(), uc.ttl)
	if err := uc.repository.CreateReservation(ctx, res); err != nil {
		uc.logger.Error("❌ [RESERVE] Failed to persist reservation, restoring stock",
			zap.String("reservation_id", res.ID),
			zap.Error(err))
		if restoreErr := uc.stock.IncreaseStock(context.WithoutCancel(ctx), req.TicketTypeID, req.Quantity); restoreErr != nil {
			uc.logger.Error("🚨 [RESERVE] Stock restore failed after persistence error",
				zap.Int64("ticket_type_id", req.TicketTypeID),
				zap.Int("quantity", req.Quantity),
				zap.Error(restoreErr))
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	uc.count(ctx, "created")
	uc.logger.Info("✅ [RESERVE] Reservation created",
		zap.String("reservation_id", res.ID),
		zap.Time("expires_at", res.ExpiresAt))
	return res, nil
}

// Confirm finaliza a reserva paga; o estoque já foi decrementado na criação
func (uc *ReservationUseCase) Confirm(ctx context.Context, id string) (*Reservation, error) {
	ctx, span := uc.tracer.Start(ctx, "reservation.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("reservation_id", id))

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := uc.repository.GetReservationForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := res.Confirm(uc.now()); err != nil {
		uc.logger.Warn("❌ [CONFIRM] Reservation cannot be confirmed",
			zap.String("reservation_id", id),
			zap.String("state", string(res.State)),
			zap.Error(err))
		return res, err
	}

	if err := uc.repository.UpdateReservationState(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	uc.count(ctx, "confirmed")
	uc.logger.Info("✅ [CONFIRM] Reservation confirmed", zap.String("reservation_id", id))
	return res, nil
}

// Release devolve o estoque e marca RELEASED. Reservas fora de ACTIVE retornam sem alteração.
// Se o estoque não puder ser devolvido a reserva continua ACTIVE.
func (uc *ReservationUseCase) Release(ctx context.Context, id string) (*Reservation, error) {
	ctx, span := uc.tracer.Start(ctx, "reservation.Release")
	defer span.End()
	span.SetAttributes(attribute.String("reservation_id", id))

	return uc.restore(ctx, id, StateReleased)
}

// Cancel é a desistência do usuário: devolve o estoque e marca CANCELLED
func (uc *ReservationUseCase) Cancel(ctx context.Context, id string) (*Reservation, error) {
	ctx, span := uc.tracer.Start(ctx, "reservation.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("reservation_id", id))

	return uc.restore(ctx, id, StateCancelled)
}

func (uc *ReservationUseCase) restore(ctx context.Context, id string, to ReservationState) (*Reservation, error) {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := uc.repository.GetReservationForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if res.State != StateActive {
		if to == StateReleased {
			uc.logger.Info("ℹ️ [RELEASE] Reservation already finished, nothing to release",
				zap.String("reservation_id", id),
				zap.String("state", string(res.State)))
			return res, nil
		}
		return res, &StateError{ReservationID: id, State: res.State}
	}

	if err := uc.stock.IncreaseStock(ctx, res.TicketTypeID, res.Quantity); err != nil {
		uc.logger.Error("❌ [RELEASE] Failed to restore stock, reservation stays active",
			zap.String("reservation_id", id),
			zap.Error(err))
		return res, fmt.Errorf("%w: %v", ErrStockRestoreFailed, err)
	}

	now := uc.now()
	if to == StateCancelled {
		err = res.Cancel(now)
	} else {
		err = res.Release(now)
	}
	if err == nil {
		err = uc.repository.UpdateReservationState(ctx, tx, res)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		// o estoque já voltou mas a reserva continua ACTIVE: desfaz para não devolver duas vezes
		uc.undoRestore(ctx, res)
		return nil, fmt.Errorf("failed to persist %s reservation: %w", to, err)
	}

	uc.count(ctx, string(to))
	uc.logger.Info("♻️ [RELEASE] Reservation finished, stock restored",
		zap.String("reservation_id", id),
		zap.String("state", string(to)),
		zap.Int("quantity", res.Quantity))
	return res, nil
}

func (uc *ReservationUseCase) undoRestore(ctx context.Context, res *Reservation) {
	if err := uc.stock.DecreaseStock(context.WithoutCancel(ctx), res.TicketTypeID, res.Quantity); err != nil {
		uc.logger.Error("🚨 [RELEASE] Stock restored but reservation state not persisted",
			zap.String("reservation_id", res.ID),
			zap.Int64("ticket_type_id", res.TicketTypeID),
			zap.Int("quantity", res.Quantity),
			zap.Error(err))
	}
}

// ListActive retorna as reservas ACTIVE do usuário
func (uc *ReservationUseCase) ListActive(ctx context.Context, userID string) ([]Reservation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return uc.repository.ListActiveByUser(ctx, userID)
}

// Get retorna a reserva sem bloqueá-la
func (uc *ReservationUseCase) Get(ctx context.Context, id string) (*Reservation, error) {
	return uc.repository.GetReservation(ctx, id)
}

// Now expõe o relógio usado nas transições
func (uc *ReservationUseCase) Now() time.Time {
	return uc.now()
}

func (uc *ReservationUseCase) count(ctx context.Context, transition string) {
	uc.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

// TicketUseCase emite e consulta ingressos
type TicketUseCase struct {
	repository TicketRepository
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewTicketUseCase(repository TicketRepository, logger *zap.Logger, tracer trace.Tracer) *TicketUseCase {
	return &TicketUseCase{
		repository: repository,
		now:        time.Now,
		logger:     logger,
		tracer:     tracer,
	}
}

// Issue emite o ingresso do pagamento; um pagamento já utilizado retorna o ingresso existente
func (uc *TicketUseCase) Issue(ctx context.Context, req IssueTicketRequest) (*Ticket, bool, error) {
	ctx, span := uc.tracer.Start(ctx, "ticket.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", req.PaymentID))

	if req.PaymentID == "" || req.Quantity <= 0 {
		return nil, false, fmt.Errorf("%w: payment_id and positive quantity are required", ErrInvalidRequest)
	}

	ticket, created, err := uc.repository.CreateTicket(ctx, NewTicket(req, uc.now()))
	if err != nil {
		uc.logger.Error("❌ [TICKET] Failed to issue ticket", zap.String("payment_id", req.PaymentID), zap.Error(err))
		return nil, false, err
	}

	if !created {
		uc.logger.Info("ℹ️ [IDEMPOTENCY] Ticket already issued for payment",
			zap.String("payment_id", req.PaymentID),
			zap.String("ticket_id", ticket.TicketID))
		return ticket, false, nil
	}

	uc.logger.Info("🎫 [TICKET] Ticket issued",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("payment_id", ticket.PaymentID),
		zap.Float64("total", ticket.Total))
	return ticket, true, nil
}

func (uc *TicketUseCase) Get(ctx context.Context, ticketID string) (*Ticket, error) {
	return uc.repository.GetTicket(ctx, ticketID)
}

// GetByPayment retorna o ingresso emitido para o pagamento, se houver
func (uc *TicketUseCase) GetByPayment(ctx context.Context, paymentID string) (*Ticket, error) {
	return uc.repository.GetTicketByPayment(ctx, paymentID)
}

func (uc *TicketUseCase) ListByUser(ctx context.Context, userID string) ([]Ticket, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return uc.repository.ListTicketsByUser(ctx, userID)
}
