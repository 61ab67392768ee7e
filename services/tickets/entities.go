package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReservationState representa o ciclo de vida de uma reserva
type ReservationState string

const (
	StateActive    ReservationState = "ACTIVE"
	StateConfirmed ReservationState = "CONFIRMED"
	StateReleased  ReservationState = "RELEASED"
	StateCancelled ReservationState = "CANCELLED"
)

// DefaultReservationTTL é o tempo que o usuário tem para concluir o pagamento
const DefaultReservationTTL = 10 * time.Minute

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidState        = errors.New("reservation is not active")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrStockRestoreFailed  = errors.New("failed to restore stock")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrInvalidRequest      = errors.New("invalid request")
)

// StateError indica uma transição pedida sobre uma reserva que já saiu de ACTIVE
type StateError struct {
	ReservationID string
	State         ReservationState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("reservation %s is not active (state: %s)", e.ReservationID, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Reservation é o bloqueio temporário de estoque de um tipo de entrada
type Reservation struct {
	ID           string           `json:"id" db:"id"`
	TicketTypeID int64            `json:"ticket_type_id" db:"ticket_type_id"`
	UserID       string           `json:"user_id" db:"user_id"`
	Quantity     int              `json:"quantity" db:"quantity"`
	State        ReservationState `json:"state" db:"state"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at" db:"expires_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// NewReservation cria a reserva ACTIVE expirando em now+ttl
func NewReservation(ticketTypeID int64, userID string, quantity int, now time.Time, ttl time.Duration) *Reservation {
	return &Reservation{
		ID:           uuid.New().String(),
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Quantity:     quantity,
		State:        StateActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		UpdatedAt:    now,
	}
}

// Expired indica se o prazo de pagamento passou
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Confirm finaliza a venda. Reservas vencidas retornam ErrReservationExpired,
// inclusive as que já foram liberadas pelo job de expiração.
func (r *Reservation) Confirm(now time.Time) error {
	switch {
	case r.State == StateActive && r.Expired(now):
		return fmt.Errorf("%w at %s", ErrReservationExpired, r.ExpiresAt.Format(time.RFC3339))
	case r.State == StateReleased && r.Expired(now):
		return fmt.Errorf("%w at %s", ErrReservationExpired, r.ExpiresAt.Format(time.RFC3339))
	case r.State != StateActive:
		return &StateError{ReservationID: r.ID, State: r.State}
	}

	r.State = StateConfirmed
	r.UpdatedAt = now
	return nil
}

// Release marca a reserva como liberada. Só deve ser chamado após devolver o estoque.
func (r *Reservation) Release(now time.Time) error {
	if r.State != StateActive {
		return &StateError{ReservationID: r.ID, State: r.State}
	}
	r.State = StateReleased
	r.UpdatedAt = now
	return nil
}

// Cancel marca a reserva como cancelada pelo usuário. Só deve ser chamado após devolver o estoque.
func (r *Reservation) Cancel(now time.Time) error {
	if r.State != StateActive {
		return &StateError{ReservationID: r.ID, State: r.State}
	}
	r.State = StateCancelled
	r.UpdatedAt = now
	return nil
}

// ReservationView é a representação exposta pela API
type ReservationView struct {
	Reservation
	SecondsRemaining int64 `json:"seconds_remaining"`
}

// View calcula os segundos restantes; zero para reservas vencidas ou finalizadas
func (r *Reservation) View(now time.Time) ReservationView {
	var remaining int64
	if r.State == StateActive && now.Before(r.ExpiresAt) {
		remaining = int64(r.ExpiresAt.Sub(now) / time.Second)
	}
	return ReservationView{Reservation: *r, SecondsRemaining: remaining}
}

// CreateReservationRequest é o payload de criação de reserva
type CreateReservationRequest struct {
	TicketTypeID int64  `json:"ticket_type_id" binding:"required,gt=0"`
	UserID       string `json:"user_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,gt=0"`
}

// TicketStatusPaid é o único status de ingresso emitido
const TicketStatusPaid = "PAID"

// Ticket é o ingresso emitido após o pagamento aprovado
type Ticket struct {
	TicketID       string    `json:"ticket_id" db:"ticket_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	TicketTypeID   int64     `json:"ticket_type_id" db:"ticket_type_id"`
	EventName      string    `json:"event_name" db:"event_name"`
	TicketTypeName string    `json:"ticket_type_name" db:"ticket_type_name"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPrice      float64   `json:"unit_price" db:"unit_price"`
	Total          float64   `json:"total" db:"total"`
	PaymentID      string    `json:"payment_id" db:"payment_id"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// IssueTicketRequest é o payload de emissão de ingresso
type IssueTicketRequest struct {
	UserID         string  `json:"user_id" binding:"required"`
	TicketTypeID   int64   `json:"ticket_type_id" binding:"required,gt=0"`
	EventName      string  `json:"event_name"`
	TicketTypeName string  `json:"ticket_type_name"`
	Quantity       int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice      float64 `json:"unit_price" binding:"gte=0"`
	PaymentID      string  `json:"payment_id" binding:"required"`
}

// NewTicket cria o ingresso PAID com total = quantidade x preço unitário
func NewTicket(req IssueTicketRequest, now time.Time) *Ticket {
	return &Ticket{
		TicketID:       newTicketID(),
		UserID:         req.UserID,
		TicketTypeID:   req.TicketTypeID,
		EventName:      req.EventName,
		TicketTypeName: req.TicketTypeName,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		Total:          float64(req.Quantity) * req.UnitPrice,
		PaymentID:      req.PaymentID,
		Status:         TicketStatusPaid,
		CreatedAt:      now,
	}
}

// newTicketID usa 16 dígitos hex do UUID, como os ids de pagamento
func newTicketID() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
