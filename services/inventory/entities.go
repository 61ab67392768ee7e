package main

import (
	"errors"
	"time"
)

var (
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrTicketTypeInactive = errors.New("ticket type is not active")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// Event é o evento ao qual os tipos de entrada pertencem
type Event struct {
	ID     int64     `json:"id" db:"id"`
	Name   string    `json:"name" db:"name"`
	Date   time.Time `json:"date" db:"event_date"`
	Status string    `json:"status" db:"status"`
}

// TicketType é um lote de entradas com preço e contador de estoque disponível
type TicketType struct {
	ID           int64     `json:"id" db:"id"`
	EventID      int64     `json:"event_id" db:"event_id"`
	Name         string    `json:"name" db:"name"`
	Price        float64   `json:"price" db:"price"`
	AvailableQty int       `json:"available_qty" db:"available_qty"`
	Active       bool      `json:"active" db:"active"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// StockMovement é a resposta das operações de estoque
type StockMovement struct {
	TicketTypeID int64  `json:"ticket_type_id"`
	Operation    string `json:"operation"`
	Quantity     int    `json:"quantity"`
	AvailableQty int    `json:"available_qty"`
}

const (
	OperationDecrease = "decrease"
	OperationIncrease = "increase"
)
