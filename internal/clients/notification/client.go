// Package notification é o cliente best-effort do serviço de notificações.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
)

// DefaultReadTimeout do serviço de notificações
const DefaultReadTimeout = 5 * time.Second

// Type identifica o modelo de mensagem
type Type string

const (
	TypeTicketPurchased Type = "TICKET_PURCHASED"
	TypePaymentRejected Type = "PAYMENT_REJECTED"
)

// Notification é o payload aceito pelo serviço
type Notification struct {
	Type      Type           `json:"type"`
	Recipient string         `json:"recipient"`
	Data      map[string]any `json:"data"`
}

// Receipt é a confirmação de enfileiramento
type Receipt struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
}

// Client envia notificações sem propagar falhas para quem chama
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient cria o cliente; sem ReadTimeout usa 5s
func NewClient(cfg httpclient.Config, logger *zap.Logger) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpclient.New(cfg), logger: logger}
}

// Send entrega a notificação. Erros são apenas registrados em log.
func (c *Client) Send(ctx context.Context, n Notification) {
	receipt, err := c.post(ctx, n)
	if err != nil {
		c.logger.Warn("⚠️ Notification not sent (non-critical)",
			zap.String("type", string(n.Type)),
			zap.String("recipient", n.Recipient),
			zap.Error(err))
		return
	}

	c.logger.Info("📧 Notification queued",
		zap.String("type", string(n.Type)),
		zap.String("notification_id", receipt.NotificationID))
}

func (c *Client) post(ctx context.Context, n Notification) (*Receipt, error) {
	var out Receipt
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(n).
		SetResult(&out).
		Post("/api/notifications")
	if err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("send notification: unexpected status %d", resp.StatusCode())
	}
	return &out, nil
}
