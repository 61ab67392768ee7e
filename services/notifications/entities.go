package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrQueueUnavailable     = errors.New("notification queue unavailable")
)

type NotificationType string

const (
	TypeTicketPurchased NotificationType = "TICKET_PURCHASED"
	TypePaymentRejected NotificationType = "PAYMENT_REJECTED"
)

type DeliveryStatus string

const (
	StatusQueued DeliveryStatus = "QUEUED"
	StatusSent   DeliveryStatus = "SENT"
	StatusFailed DeliveryStatus = "FAILED"
)

// NotificationRequest é o corpo aceito em POST /api/notifications
type NotificationRequest struct {
	Type      NotificationType `json:"type" binding:"required,oneof=TICKET_PURCHASED PAYMENT_REJECTED"`
	Recipient string           `json:"recipient" binding:"required"`
	Data      map[string]any   `json:"data"`
}

// Notification é a mensagem que trafega na fila e fica registrada no log de entregas
type Notification struct {
	ID        string           `json:"notification_id"`
	Type      NotificationType `json:"type"`
	Recipient string           `json:"recipient"`
	Data      map[string]any   `json:"data,omitempty"`
	Status    DeliveryStatus   `json:"status"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	SentAt    *time.Time       `json:"sent_at,omitempty"`
}

func NewNotification(req NotificationRequest, now time.Time) *Notification {
	return &Notification{
		ID:        "NOT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		Type:      req.Type,
		Recipient: req.Recipient,
		Data:      req.Data,
		Status:    StatusQueued,
		CreatedAt: now,
	}
}

// Receipt é a resposta 202 do enfileiramento
type Receipt struct {
	NotificationID string         `json:"notification_id"`
	Status         DeliveryStatus `json:"status"`
}

// Subject é a linha de assunto usada na entrega simulada
func (n *Notification) Subject() string {
	switch n.Type {
	case TypeTicketPurchased:
		return "🎫 Your tickets are confirmed"
	case TypePaymentRejected:
		return "⚠️ Your payment was rejected"
	default:
		return string(n.Type)
	}
}

// Summary resume os dados principais da mensagem para o log de entrega
func (n *Notification) Summary() string {
	switch n.Type {
	case TypeTicketPurchased:
		return fmt.Sprintf("ticket=%v event=%v quantity=%v total=%v",
			n.Data["ticketId"], n.Data["eventName"], n.Data["quantity"], n.Data["total"])
	case TypePaymentRejected:
		return fmt.Sprintf("event=%v amount=%v reason=%v",
			n.Data["eventName"], n.Data["amount"], n.Data["reason"])
	default:
		return ""
	}
}
