package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"
)

var errStockDown = errors.New("inventory unavailable")

// fakeStock simula o estoque remoto do serviço de inventário
type fakeStock struct {
	mu           sync.Mutex
	available    map[int64]int
	increases    int
	decreases    int
	failIncrease error
	failDecrease error
	delay        time.Duration
}

func newFakeStock(ticketTypeID int64, qty int) *fakeStock {
	return &fakeStock{available: map[int64]int{ticketTypeID: qty}}
}

func (s *fakeStock) DecreaseStock(_ context.Context, id int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDecrease != nil {
		return s.failDecrease
	}
	if s.available[id] < qty {
		return errors.New("insufficient stock")
	}
	s.available[id] -= qty
	s.decreases++
	return nil
}

func (s *fakeStock) IncreaseStock(_ context.Context, id int64, qty int) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIncrease != nil {
		return s.failIncrease
	}
	s.available[id] += qty
	s.increases++
	return nil
}

func (s *fakeStock) Available(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available[id]
}

func (s *fakeStock) SetFailIncrease(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIncrease = err
}

func (s *fakeStock) Increases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increases
}

// failingCreateRepo falha ao gravar reservas novas
type failingCreateRepo struct {
	*MemoryRepository
}

func (r failingCreateRepo) CreateReservation(context.Context, *Reservation) error {
	return errors.New("disk full")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestReservationUseCase(t *testing.T, repo ReservationRepository, stock StockService) (*ReservationUseCase, *clock) {
	t.Helper()
	clk := &clock{now: baseTime}
	uc := NewReservationUseCase(repo, stock, DefaultReservationTTL, zaptest.NewLogger(t), otel.Tracer("test"))
	uc.now = clk.Now
	return uc, clk
}
