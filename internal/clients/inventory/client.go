// Package inventory é o cliente RPC do serviço de catálogo e estoque.
package inventory

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

var (
	ErrNotFound          = errors.New("inventory: not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrUnavailable       = errors.New("inventory: service unavailable")
)

// TicketType é a visão do tipo de entrada exposta pelo serviço de inventário
type TicketType struct {
	ID           int64   `json:"id"`
	EventID      int64   `json:"event_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	AvailableQty int     `json:"available_qty"`
	Active       bool    `json:"active"`
}

// Event é a visão resumida do evento
type Event struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client fala com o serviço de inventário via HTTP/JSON
type Client struct {
	http *resty.Client
}

// NewClient cria o cliente com os timeouts informados
func NewClient(cfg httpclient.Config) *Client {
	return &Client{http: httpclient.New(cfg)}
}

// GetTicketType busca preço, disponibilidade e evento de um tipo de entrada
func (c *Client) GetTicketType(ctx context.Context, id int64) (*TicketType, error) {
	var out TicketType
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/ticket-types/{id}")
	if err := check(resp, err, "get ticket type"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvent busca nome, data e status do evento
func (c *Client) GetEvent(ctx context.Context, id int64) (*Event, error) {
	var out Event
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/events/{id}")
	if err := check(resp, err, "get event"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecreaseStock retira quantity unidades do estoque disponível
func (c *Client) DecreaseStock(ctx context.Context, id int64, quantity int) error {
	return c.adjust(ctx, id, quantity, "decrease")
}

// IncreaseStock devolve quantity unidades ao estoque disponível
func (c *Client) IncreaseStock(ctx context.Context, id int64, quantity int) error {
	return c.adjust(ctx, id, quantity, "increase")
}

func (c *Client) adjust(ctx context.Context, id int64, quantity int, op string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetPathParam("op", op).
		SetQueryParam("quantity", strconv.Itoa(quantity)).
		SetError(&errorBody{}).
		Put("/api/ticket-types/{id}/{op}")
	return check(resp, err, op+" stock")
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", ErrNotFound, op, msg)
	case resp.StatusCode() == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrInsufficientStock, msg)
	case httpclient.IsServerError(resp):
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, op, msg)
	default:
		return fmt.Errorf("inventory: %s: unexpected status %d: %s", op, resp.StatusCode(), msg)
	}
}
