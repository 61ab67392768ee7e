package main

import (
	"context"
	"errors"
	"sync"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/keylock"
)

// MemoryPaymentRepository mantém as tentativas em memória; o lock por chave
// faz o papel do advisory lock do PostgreSQL
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]PaymentAttempt
	byKey    map[string]string
	locks    *keylock.Locker
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]PaymentAttempt),
		byKey:    make(map[string]string),
		locks:    keylock.New(),
	}
}

type memoryTx struct {
	repo    *MemoryPaymentRepository
	unlocks []func()
	pending []PaymentAttempt
	done    bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errors.New("transaction already closed")
	}
	defer t.close()

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, p := range t.pending {
		if p.IdempotencyKey != "" {
			if _, ok := t.repo.byKey[p.IdempotencyKey]; ok {
				return ErrDuplicateKey
			}
		}
	}
	for _, p := range t.pending {
		t.repo.payments[p.PaymentID] = p
		if p.IdempotencyKey != "" {
			t.repo.byKey[p.IdempotencyKey] = p.PaymentID
		}
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	if !t.done {
		t.close()
	}
	return nil
}

func (t *memoryTx) close() {
	t.done = true
	t.pending = nil
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
}

func (r *MemoryPaymentRepository) BeginTx(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{repo: r}, nil
}

func (r *MemoryPaymentRepository) LockIdempotencyKey(_ context.Context, tx Tx, key string) error {
	mtx := tx.(*memoryTx)
	mtx.unlocks = append(mtx.unlocks, r.locks.Lock(key))
	return nil
}

func (r *MemoryPaymentRepository) GetByIdempotencyKey(_ context.Context, tx Tx, key string) (*PaymentAttempt, error) {
	mtx := tx.(*memoryTx)
	for _, p := range mtx.pending {
		if p.IdempotencyKey == key {
			return &p, nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p := r.payments[id]
	return &p, nil
}

func (r *MemoryPaymentRepository) CreatePayment(_ context.Context, tx Tx, p *PaymentAttempt) error {
	mtx := tx.(*memoryTx)
	mtx.pending = append(mtx.pending, *p)
	return nil
}

func (r *MemoryPaymentRepository) GetPayment(_ context.Context, paymentID string) (*PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

// Len retorna o número de tentativas persistidas
func (r *MemoryPaymentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payments)
}
