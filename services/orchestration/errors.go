package main

import (
	"fmt"
	"net/http"
)

// Kind classifica a falha de uma compra
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindNotFound              Kind = "NOT_FOUND"
	KindInsufficientStock     Kind = "INSUFFICIENT_STOCK"
	KindPaymentRejected       Kind = "PAYMENT_REJECTED"
	KindPaymentError          Kind = "PAYMENT_ERROR"
	KindServiceUnavailable    Kind = "SERVICE_UNAVAILABLE"
	KindCriticalInconsistency Kind = "CRITICAL_INCONSISTENCY"
	KindIdempotencyConflict   Kind = "IDEMPOTENCY_CONFLICT"
)

// HTTPStatus é o status devolvido ao cliente para cada Kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindIdempotencyConflict:
		return http.StatusConflict
	case KindPaymentRejected:
		return http.StatusPaymentRequired
	case KindPaymentError:
		return http.StatusBadGateway
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PurchaseError é o único tipo de erro devolvido por PurchaseTicket
type PurchaseError struct {
	Kind          Kind
	Message       string
	PaymentID     string
	ReservationID string
	Err           error
}

func (e *PurchaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PurchaseError) Unwrap() error {
	return e.Err
}

func newPurchaseError(kind Kind, message string, err error) *PurchaseError {
	return &PurchaseError{Kind: kind, Message: message, Err: err}
}
