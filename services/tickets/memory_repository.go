package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/keylock"
)

// MemoryRepository guarda reservas e ingressos em memória.
// Cada reserva lida com GetReservationForUpdate fica bloqueada até o fim da Tx.
type MemoryRepository struct {
	mu           sync.RWMutex
	reservations map[string]Reservation
	tickets      map[string]Ticket
	byPayment    map[string]string
	locks        *keylock.Locker
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reservations: make(map[string]Reservation),
		tickets:      make(map[string]Ticket),
		byPayment:    make(map[string]string),
		locks:        keylock.New(),
	}
}

type memoryTx struct {
	repo    *MemoryRepository
	unlocks []func()
	pending map[string]Reservation
	done    bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.repo.mu.Lock()
	for id, res := range t.pending {
		t.repo.reservations[id] = res
	}
	t.repo.mu.Unlock()
	t.close()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.close()
	return nil
}

func (t *memoryTx) close() {
	t.done = true
	t.pending = nil
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
}

func (r *MemoryRepository) BeginTx(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{repo: r, pending: make(map[string]Reservation)}, nil
}

func (r *MemoryRepository) CreateReservation(_ context.Context, res *Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[res.ID]; ok {
		return errors.New("reservation already exists")
	}
	r.reservations[res.ID] = *res
	return nil
}

func (r *MemoryRepository) GetReservation(_ context.Context, id string) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &res, nil
}

func (r *MemoryRepository) GetReservationForUpdate(ctx context.Context, tx Tx, id string) (*Reservation, error) {
	mtx := tx.(*memoryTx)
	if res, ok := mtx.pending[id]; ok {
		return &res, nil
	}

	unlock := r.locks.Lock("reservation:" + id)
	mtx.unlocks = append(mtx.unlocks, unlock)

	res, err := r.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	mtx.pending[id] = *res
	return res, nil
}

func (r *MemoryRepository) UpdateReservationState(_ context.Context, tx Tx, res *Reservation) error {
	mtx := tx.(*memoryTx)
	if _, ok := mtx.pending[res.ID]; !ok {
		return errors.New("reservation must be locked before update")
	}
	mtx.pending[res.ID] = *res
	return nil
}

func (r *MemoryRepository) ListActiveByUser(_ context.Context, userID string) ([]Reservation, error) {
	return r.filter(func(res Reservation) bool {
		return res.UserID == userID && res.State == StateActive
	}, 0, func(a, b Reservation) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (r *MemoryRepository) ListExpired(_ context.Context, now time.Time, after ExpiredCursor, limit int) ([]Reservation, error) {
	return r.filter(func(res Reservation) bool {
		return res.State == StateActive && res.ExpiresAt.Before(now) && afterCursor(res, after)
	}, limit, func(a, b Reservation) bool { return afterCursor(b, ExpiredCursor{ExpiresAt: a.ExpiresAt, ID: a.ID}) }), nil
}

func afterCursor(res Reservation, c ExpiredCursor) bool {
	if res.ExpiresAt.Equal(c.ExpiresAt) {
		return res.ID > c.ID
	}
	return res.ExpiresAt.After(c.ExpiresAt)
}

func (r *MemoryRepository) filter(keep func(Reservation) bool, limit int, less func(a, b Reservation) bool) []Reservation {
	r.mu.RLock()
	out := []Reservation{}
	for _, res := range r.reservations {
		if keep(res) {
			out = append(out, res)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) CreateTicket(_ context.Context, t *Ticket) (*Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPayment[t.PaymentID]; ok {
		existing := r.tickets[id]
		return &existing, false, nil
	}
	r.tickets[t.TicketID] = *t
	r.byPayment[t.PaymentID] = t.TicketID
	return t, true, nil
}

func (r *MemoryRepository) GetTicket(_ context.Context, ticketID string) (*Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) GetTicketByPayment(_ context.Context, paymentID string) (*Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPayment[paymentID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	t := r.tickets[id]
	return &t, nil
}

func (r *MemoryRepository) ListTicketsByUser(_ context.Context, userID string) ([]Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Ticket{}
	for _, t := range r.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
