package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/inventory"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/notification"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/payment"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/tickets"
)

var eventDate = time.Date(2026, time.December, 12, 21, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	types map[int64]inventory.TicketType
	err   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{types: map[int64]inventory.TicketType{
		1: {ID: 1, EventID: 10, Name: "Pista", Price: 250, AvailableQty: 5, Active: true},
		2: {ID: 2, EventID: 10, Name: "Camarote", Price: 750, AvailableQty: 5, Active: true},
		3: {ID: 3, EventID: 10, Name: "Encerrado", Price: 100, AvailableQty: 50, Active: false},
	}}
}

func (f *fakeCatalog) GetTicketType(_ context.Context, id int64) (*inventory.TicketType, error) {
	if f.err != nil {
		return nil, f.err
	}
	tt, ok := f.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: ticket type %d", inventory.ErrNotFound, id)
	}
	return &tt, nil
}

func (f *fakeCatalog) GetEvent(_ context.Context, id int64) (*inventory.Event, error) {
	return &inventory.Event{ID: id, Name: "Rock in Rio", Date: eventDate, Status: "ON_SALE"}, nil
}

// fakeReservations imita o motor de reservas com um contador de estoque
type fakeReservations struct {
	mu           sync.Mutex
	stock        int
	reservations map[string]*tickets.Reservation
	createErr    error
	confirmErr   error
	releaseErr   error
	releases     int
	onRelease    func(ctx context.Context)
}

func newFakeReservations(stock int) *fakeReservations {
	return &fakeReservations{stock: stock, reservations: make(map[string]*tickets.Reservation)}
}

func (f *fakeReservations) CreateReservation(_ context.Context, ticketTypeID int64, userID string, quantity int) (*tickets.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.stock < quantity {
		return nil, tickets.ErrInsufficientStock
	}
	f.stock -= quantity
	res := &tickets.Reservation{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Quantity:     quantity,
		State:        "ACTIVE",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}
	f.reservations[res.ID] = res
	return res, nil
}

func (f *fakeReservations) ConfirmReservation(_ context.Context, id string) (*tickets.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	res := f.reservations[id]
	res.State = "CONFIRMED"
	return res, nil
}

func (f *fakeReservations) ReleaseReservation(ctx context.Context, id string) (*tickets.Reservation, error) {
	if f.onRelease != nil {
		f.onRelease(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	res, ok := f.reservations[id]
	if !ok {
		return nil, tickets.ErrReservationNotFound
	}
	if res.State == "ACTIVE" {
		res.State = "RELEASED"
		f.stock += res.Quantity
	}
	return res, nil
}

func (f *fakeReservations) Stock() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock
}

func (f *fakeReservations) States() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.reservations {
		out[r.State]++
	}
	return out
}

// fakePayments aplica as regras do gateway e colapsa chaves repetidas
type fakePayments struct {
	mu        sync.Mutex
	byKey     map[string]payment.Result
	calls     int
	keys      []string
	err       error
	fallback  bool
	authorize func(ctx context.Context, req payment.AuthorizeRequest)
}

func newFakePayments() *fakePayments {
	return &fakePayments{byKey: make(map[string]payment.Result)}
}

func (f *fakePayments) Authorize(ctx context.Context, req payment.AuthorizeRequest) (*payment.Result, error) {
	if f.authorize != nil {
		f.authorize(ctx, req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, req.IdempotencyKey)

	if f.err != nil {
		return nil, f.err
	}
	if f.fallback {
		return &payment.Result{Status: payment.StatusServiceUnavailable, Message: "payment service unavailable, try again later"}, nil
	}
	if stored, ok := f.byKey[req.IdempotencyKey]; ok {
		stored.Replayed = true
		stored.Attempts = 1
		return &stored, nil
	}

	res := payment.Result{
		PaymentID: "PAY-" + fmt.Sprintf("%08d", len(f.byKey)+1),
		Status:    payment.StatusApproved,
		Amount:    req.Amount,
		Message:   "payment processed successfully",
		Attempts:  1,
	}
	if req.Amount > 1000 {
		res.Status = payment.StatusRejected
		res.Message = "insufficient funds (amount exceeds limit of 1000.00)"
	}
	f.byKey[req.IdempotencyKey] = res
	return &res, nil
}

// fakeIssuer é idempotente por payment_id
type fakeIssuer struct {
	mu        sync.Mutex
	byPayment map[string]tickets.Ticket
	err       error
	lookupErr error
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{byPayment: make(map[string]tickets.Ticket)}
}

func (f *fakeIssuer) IssueTicket(_ context.Context, req tickets.IssueRequest) (*tickets.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.byPayment[req.PaymentID]; ok {
		return &t, nil
	}
	t := tickets.Ticket{
		TicketID:       "TKT-" + fmt.Sprintf("%08d", len(f.byPayment)+1),
		UserID:         req.UserID,
		TicketTypeID:   req.TicketTypeID,
		EventName:      req.EventName,
		TicketTypeName: req.TicketTypeName,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		Total:          req.UnitPrice * float64(req.Quantity),
		PaymentID:      req.PaymentID,
		Status:         "PAID",
		CreatedAt:      time.Now(),
	}
	f.byPayment[req.PaymentID] = t
	return &t, nil
}

func (f *fakeIssuer) GetTicketByPayment(_ context.Context, paymentID string) (*tickets.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	t, ok := f.byPayment[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", tickets.ErrTicketNotFound, paymentID)
	}
	return &t, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n notification.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

func (f *fakeNotifier) Types() []notification.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification.Type
	for _, n := range f.sent {
		out = append(out, n.Type)
	}
	return out
}

type fakeEscalator struct {
	mu        sync.Mutex
	incidents []CriticalIncident
	err       error
}

func (f *fakeEscalator) Escalate(_ context.Context, incident CriticalIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents = append(f.incidents, incident)
	return f.err
}

type sagaFixture struct {
	uc           *PurchaseUseCase
	catalog      *fakeCatalog
	reservations *fakeReservations
	payments     *fakePayments
	issuer       *fakeIssuer
	notifier     *fakeNotifier
	escalator    *fakeEscalator
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	f := &sagaFixture{
		catalog:      newFakeCatalog(),
		reservations: newFakeReservations(5),
		payments:     newFakePayments(),
		issuer:       newFakeIssuer(),
		notifier:     &fakeNotifier{},
		escalator:    &fakeEscalator{},
	}
	f.uc = NewPurchaseUseCase(f.catalog, f.reservations, f.payments, f.issuer, f.notifier, f.escalator,
		time.Second, zaptest.NewLogger(t), otel.Tracer("test"))
	return f
}

func purchaseCommand(ticketTypeID int64, quantity int, key string) PurchaseCommand {
	return PurchaseCommand{
		UserID:         "user-1",
		UserEmail:      "maria@example.com",
		TicketTypeID:   ticketTypeID,
		Quantity:       quantity,
		IdempotencyKey: key,
		PaymentMethod: PaymentMethod{
			CardNumber: "4111111111111111",
			CVV:        "123",
			ExpiryDate: "12/30",
			CardHolder: "Maria Silva",
		},
	}
}

var errBoom = errors.New("boom")
