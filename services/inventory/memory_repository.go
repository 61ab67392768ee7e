package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryInventoryRepository guarda catálogo e estoque em memória atrás de um mutex
type MemoryInventoryRepository struct {
	mu     sync.Mutex
	events map[int64]Event
	types  map[int64]TicketType
	now    func() time.Time
}

func NewMemoryInventoryRepository(events []Event, types []TicketType) *MemoryInventoryRepository {
	r := &MemoryInventoryRepository{
		events: make(map[int64]Event, len(events)),
		types:  make(map[int64]TicketType, len(types)),
		now:    time.Now,
	}
	for _, ev := range events {
		r.events[ev.ID] = ev
	}
	for _, tt := range types {
		r.types[tt.ID] = tt
	}
	return r
}

// DemoCatalog é o catálogo inicial usado pelo backend em memória
func DemoCatalog() ([]Event, []TicketType) {
	date := time.Date(2026, time.December, 12, 21, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, Name: "Rock in Rio", Date: date, Status: "ON_SALE"},
		{ID: 2, Name: "Jazz Festival", Date: date.AddDate(0, 1, 0), Status: "ON_SALE"},
	}
	types := []TicketType{
		{ID: 1, EventID: 1, Name: "Pista", Price: 250, AvailableQty: 1000, Active: true},
		{ID: 2, EventID: 1, Name: "VIP", Price: 900, AvailableQty: 100, Active: true},
		{ID: 3, EventID: 2, Name: "Camarote", Price: 1500, AvailableQty: 20, Active: true},
		{ID: 4, EventID: 2, Name: "Meia-entrada", Price: 120, AvailableQty: 0, Active: false},
	}
	return events, types
}

func (r *MemoryInventoryRepository) GetTicketType(_ context.Context, id int64) (*TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.types[id]
	if !ok {
		return nil, ErrTicketTypeNotFound
	}
	return &tt, nil
}

func (r *MemoryInventoryRepository) ListTicketTypes(_ context.Context) ([]TicketType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TicketType, 0, len(r.types))
	for _, tt := range r.types {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryInventoryRepository) GetEvent(_ context.Context, id int64) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &ev, nil
}

func (r *MemoryInventoryRepository) Decrease(_ context.Context, id int64, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.types[id]
	if !ok {
		return 0, ErrTicketTypeNotFound
	}
	if !tt.Active {
		return tt.AvailableQty, ErrTicketTypeInactive
	}
	if tt.AvailableQty < quantity {
		return tt.AvailableQty, fmt.Errorf("%w: available %d", ErrInsufficientStock, tt.AvailableQty)
	}
	tt.AvailableQty -= quantity
	tt.UpdatedAt = r.now()
	r.types[id] = tt
	return tt.AvailableQty, nil
}

func (r *MemoryInventoryRepository) Increase(_ context.Context, id int64, quantity int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.types[id]
	if !ok {
		return 0, ErrTicketTypeNotFound
	}
	tt.AvailableQty += quantity
	tt.UpdatedAt = r.now()
	r.types[id] = tt
	return tt.AvailableQty, nil
}

func (r *MemoryInventoryRepository) Available(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tt, ok := r.types[id]
	if !ok {
		return 0, ErrTicketTypeNotFound
	}
	return tt.AvailableQty, nil
}
