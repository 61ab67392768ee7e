package main

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus é a decisão do gateway simulado
type PaymentStatus string

const (
	StatusApproved PaymentStatus = "APPROVED"
	StatusRejected PaymentStatus = "REJECTED"
)

// AmountLimit é o valor acima do qual o gateway simula fundos insuficientes
const AmountLimit = 1000.0

const (
	MessageApproved          = "payment processed successfully"
	MessageInvalidAmount     = "invalid amount"
	MessageCardBlocked       = "card blocked by issuing bank"
	MessageInsufficientFunds = "insufficient funds (amount exceeds limit of 1000.00)"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicateKey    = errors.New("idempotency key already used")
)

// PaymentAttempt é o registro persistido de uma autorização
type PaymentAttempt struct {
	PaymentID       string        `json:"payment_id" db:"payment_id"`
	IdempotencyKey  string        `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Amount          float64       `json:"amount" db:"amount"`
	Status          PaymentStatus `json:"status" db:"status"`
	CardFingerprint string        `json:"card_last4" db:"card_last4"`
	Message         string        `json:"message" db:"message"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// AuthorizeRequest é o payload de autorização
type AuthorizeRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Amount         float64 `json:"amount"`
	CardNumber     string  `json:"card_number" binding:"required,min=4"`
	CVV            string  `json:"cvv" binding:"required"`
	ExpiryDate     string  `json:"expiry_date" binding:"required"`
	CardHolder     string  `json:"card_holder" binding:"required"`
}

// AuthorizeResponse é o corpo retornado ao cliente; replayed indica resposta de uma chave já usada
type AuthorizeResponse struct {
	PaymentID string        `json:"payment_id"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
	Replayed  bool          `json:"replayed"`
}

func (p *PaymentAttempt) Response(replayed bool) AuthorizeResponse {
	return AuthorizeResponse{
		PaymentID: p.PaymentID,
		Status:    p.Status,
		Amount:    p.Amount,
		Message:   p.Message,
		CreatedAt: p.CreatedAt,
		Replayed:  replayed,
	}
}

// Decide aplica as regras do gateway, na ordem: valor inválido, cartão bloqueado, limite
func Decide(amount float64, cardNumber string) (PaymentStatus, string) {
	switch {
	case amount <= 0:
		return StatusRejected, MessageInvalidAmount
	case strings.HasSuffix(cardNumber, "0000"):
		return StatusRejected, MessageCardBlocked
	case amount > AmountLimit:
		return StatusRejected, MessageInsufficientFunds
	default:
		return StatusApproved, MessageApproved
	}
}

// NewPaymentAttempt decide e monta o registro da tentativa
func NewPaymentAttempt(req AuthorizeRequest, now time.Time) *PaymentAttempt {
	status, message := Decide(req.Amount, req.CardNumber)
	return &PaymentAttempt{
		PaymentID:       newPaymentID(),
		IdempotencyKey:  req.IdempotencyKey,
		Amount:          req.Amount,
		Status:          status,
		CardFingerprint: lastFour(req.CardNumber),
		Message:         message,
		CreatedAt:       now,
	}
}

// newPaymentID usa 16 dígitos hex do UUID; 8 dígitos colidem na casa das dezenas de milhares de linhas
func newPaymentID() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func lastFour(card string) string {
	if len(card) <= 4 {
		return card
	}
	return card[len(card)-4:]
}
