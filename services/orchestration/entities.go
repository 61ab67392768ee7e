package main

import (
	"time"
)

// PaymentMethod são os dados do cartão enviados na compra
type PaymentMethod struct {
	CardNumber string `json:"card_number" binding:"required,number,min=13,max=19"`
	CVV        string `json:"cvv" binding:"required,number,min=3,max=4"`
	ExpiryDate string `json:"expiry_date" binding:"required,expiry"`
	CardHolder string `json:"card_holder" binding:"required,min=3,max=100"`
}

// PurchaseRequest é o corpo de POST /api/purchases
type PurchaseRequest struct {
	TicketTypeID   int64         `json:"ticket_type_id" binding:"required,gt=0"`
	Quantity       int           `json:"quantity" binding:"required,min=1,max=10"`
	IdempotencyKey string        `json:"idempotency_key" binding:"max=128"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
}

// PurchaseCommand é a entrada da saga, já com a identidade do usuário
type PurchaseCommand struct {
	UserID         string
	UserEmail      string
	TicketTypeID   int64
	Quantity       int
	IdempotencyKey string
	PaymentMethod  PaymentMethod
}

// TicketReceipt é o resultado de uma compra concluída
type TicketReceipt struct {
	TicketID       string    `json:"ticket_id"`
	ReservationID  string    `json:"reservation_id"`
	PaymentID      string    `json:"payment_id"`
	UserID         string    `json:"user_id"`
	EventName      string    `json:"event_name"`
	EventDate      time.Time `json:"event_date"`
	TicketTypeName string    `json:"ticket_type_name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      float64   `json:"unit_price"`
	Total          float64   `json:"total"`
	Status         string    `json:"status"`
	PurchasedAt    time.Time `json:"purchased_at"`
}

// SagaRun acompanha uma execução da saga; existe apenas durante a requisição
type SagaRun struct {
	Command        PurchaseCommand
	IdempotencyKey string
	EventName      string
	EventDate      time.Time
	TicketTypeName string
	UnitPrice      float64
	Total          float64
	ReservationID  string
	PaymentID      string
	TicketID       string
	Compensations  *Compensations
}

func NewSagaRun(cmd PurchaseCommand, idempotencyKey string) *SagaRun {
	return &SagaRun{
		Command:        cmd,
		IdempotencyKey: idempotencyKey,
		Compensations:  &Compensations{},
	}
}

// CriticalIncident descreve um pagamento capturado sem ingresso emitido
type CriticalIncident struct {
	PaymentID         string    `json:"payment_id"`
	ReservationID     string    `json:"reservation_id"`
	UserID            string    `json:"user_id"`
	TicketTypeID      int64     `json:"ticket_type_id"`
	Quantity          int       `json:"quantity"`
	Amount            float64   `json:"amount"`
	IdempotencyKey    string    `json:"idempotency_key"`
	FailedStep        string    `json:"failed_step"`
	Reason            string    `json:"reason"`
	CompensationError string    `json:"compensation_error,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
