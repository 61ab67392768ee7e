// Package tickets é o cliente do serviço de ingressos: reservas temporárias de estoque
// e emissão do ingresso após o pagamento.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
)

// DefaultReadTimeout do serviço de ingressos
const DefaultReadTimeout = 15 * time.Second

var (
	ErrInsufficientStock   = errors.New("tickets: insufficient stock")
	ErrReservationNotFound = errors.New("tickets: reservation not found")
	ErrInvalidState        = errors.New("tickets: reservation is not active")
	ErrReservationExpired  = errors.New("tickets: reservation expired")
	ErrUnavailable         = errors.New("tickets: service unavailable")
	ErrTicketNotFound      = errors.New("tickets: ticket not found")
)

// Reservation espelha a reserva exposta pelo serviço
type Reservation struct {
	ID               string    `json:"id"`
	TicketTypeID     int64     `json:"ticket_type_id"`
	UserID           string    `json:"user_id"`
	Quantity         int       `json:"quantity"`
	State            string    `json:"state"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

// IssueRequest contém os dados do ingresso a ser emitido
type IssueRequest struct {
	UserID         string  `json:"user_id"`
	TicketTypeID   int64   `json:"ticket_type_id"`
	EventName      string  `json:"event_name"`
	TicketTypeName string  `json:"ticket_type_name"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	PaymentID      string  `json:"payment_id"`
}

// Ticket é o ingresso emitido
type Ticket struct {
	TicketID       string    `json:"ticket_id"`
	UserID         string    `json:"user_id"`
	TicketTypeID   int64     `json:"ticket_type_id"`
	EventName      string    `json:"event_name"`
	TicketTypeName string    `json:"ticket_type_name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	Total          float64   `json:"total"`
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type createReservationRequest struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	UserID       string `json:"user_id"`
	Quantity     int    `json:"quantity"`
}

type errorBody struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

// Client fala com o serviço de ingressos
type Client struct {
	http *resty.Client
}

// NewClient cria o cliente; sem ReadTimeout usa 15s
func NewClient(cfg httpclient.Config) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Client{http: httpclient.New(cfg)}
}

// CreateReservation bloqueia quantity unidades por tempo limitado
func (c *Client) CreateReservation(ctx context.Context, ticketTypeID int64, userID string, quantity int) (*Reservation, error) {
	var out Reservation
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createReservationRequest{TicketTypeID: ticketTypeID, UserID: userID, Quantity: quantity}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/reservations")
	if err := check(resp, err, "create reservation"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmReservation finaliza a reserva (ACTIVE -> CONFIRMED)
func (c *Client) ConfirmReservation(ctx context.Context, id string) (*Reservation, error) {
	return c.transition(ctx, id, "confirm")
}

// ReleaseReservation devolve o estoque; reservas já finalizadas retornam sem alteração
func (c *Client) ReleaseReservation(ctx context.Context, id string) (*Reservation, error) {
	return c.transition(ctx, id, "release")
}

// CancelReservation cancela a reserva a pedido do usuário
func (c *Client) CancelReservation(ctx context.Context, id string) (*Reservation, error) {
	return c.transition(ctx, id, "cancel")
}

// ListActive retorna as reservas ativas do usuário
func (c *Client) ListActive(ctx context.Context, userID string) ([]Reservation, error) {
	var out []Reservation
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/reservations/active")
	if err := check(resp, err, "list active reservations"); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueTicket emite o ingresso vinculado ao pagamento aprovado
func (c *Client) IssueTicket(ctx context.Context, req IssueRequest) (*Ticket, error) {
	var out Ticket
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/tickets")
	if err := check(resp, err, "issue ticket"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTicketByPayment busca o ingresso já emitido para o pagamento
func (c *Client) GetTicketByPayment(ctx context.Context, paymentID string) (*Ticket, error) {
	var out Ticket
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("paymentId", paymentID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/payments/{paymentId}/ticket")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: payment %s", ErrTicketNotFound, paymentID)
	}
	if err := check(resp, err, "get ticket for payment "+paymentID); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) transition(ctx context.Context, id, op string) (*Reservation, error) {
	var out Reservation
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetPathParam("op", op).
		SetResult(&out).
		SetError(&errorBody{}).
		Put("/api/reservations/{id}/{op}")
	if err := check(resp, err, op+" reservation "+id); err != nil {
		return nil, err
	}
	return &out, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	if !resp.IsError() {
		return nil
	}

	body, _ := resp.Error().(*errorBody)
	if body == nil {
		body = &errorBody{}
	}
	msg := body.Error
	if msg == "" {
		msg = resp.Status()
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrReservationNotFound, op)
	case http.StatusGone:
		return fmt.Errorf("%w: %s", ErrReservationExpired, op)
	case http.StatusConflict:
		if body.State != "" {
			return fmt.Errorf("%w: %s: state %s", ErrInvalidState, op, body.State)
		}
		return fmt.Errorf("%w: %s: %s", ErrInsufficientStock, op, msg)
	}
	if httpclient.IsServerError(resp) {
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, msg)
	}
	return fmt.Errorf("tickets: %s: unexpected status %d: %s", op, resp.StatusCode(), strconv.Quote(msg))
}
