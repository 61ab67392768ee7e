package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCompensationTimeout limita a execução de todas as compensações de uma saga
const DefaultCompensationTimeout = 30 * time.Second

// Compensation desfaz um passo já aplicado
type Compensation struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Compensations é a pilha de compensações de uma saga, executada em ordem inversa
type Compensations struct {
	mu    sync.Mutex
	steps []Compensation
	ran   bool
}

func (c *Compensations) Push(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, Compensation{Name: name, Fn: fn})
}

func (c *Compensations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Run executa as compensações (LIFO) num contexto que ignora o cancelamento do chamador.
// Uma falha não interrompe as demais; os erros voltam agregados. Só roda uma vez.
func (c *Compensations) Run(parent context.Context, timeout time.Duration, logger *zap.Logger) error {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return nil
	}
	c.ran = true
	steps := append([]Compensation(nil), c.steps...)
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultCompensationTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		logger.Warn("↩️ [COMPENSATE] Running compensation", zap.String("step", step.Name))
		if err := step.Fn(ctx); err != nil {
			logger.Error("❌ [COMPENSATE] Compensation failed",
				zap.String("step", step.Name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		logger.Info("♻️ [COMPENSATE] Compensation done", zap.String("step", step.Name))
	}
	return errors.Join(errs...)
}
