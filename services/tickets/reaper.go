package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultReaperInterval é o intervalo entre varreduras de reservas vencidas
const DefaultReaperInterval = 30 * time.Second

const reaperBatchSize = 500

// Reaper libera periodicamente reservas ACTIVE com prazo vencido
type Reaper struct {
	reservations *ReservationUseCase
	repository   ReservationRepository
	interval     time.Duration
	batchSize    int
	logger       *zap.Logger
	released     metric.Int64Counter
	failures     metric.Int64Counter
}

func NewReaper(reservations *ReservationUseCase, repository ReservationRepository, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	meter := otel.Meter("tickets-service")
	released, _ := meter.Int64Counter("reservation_reaper_released_total")
	failures, _ := meter.Int64Counter("reservation_reaper_failures_total")

	return &Reaper{
		reservations: reservations,
		repository:   repository,
		interval:     interval,
		batchSize:    reaperBatchSize,
		logger:       logger,
		released:     released,
		failures:     failures,
	}
}

// Run varre a cada intervalo até o contexto ser cancelado
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("⏰ Reservation reaper started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reservation reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep libera as reservas vencidas, página a página. Falhas individuais são registradas e não
// interrompem a varredura; o cursor avança além delas para que reservas mais novas também sejam tentadas.
func (r *Reaper) Sweep(ctx context.Context) (released, failed int) {
	now := r.reservations.Now()
	var cursor ExpiredCursor

	for ctx.Err() == nil {
		page, err := r.repository.ListExpired(ctx, now, cursor, r.batchSize)
		if err != nil {
			r.logger.Error("❌ [REAPER] Failed to list expired reservations", zap.Error(err))
			break
		}
		if len(page) == 0 {
			break
		}

		r.logger.Info("🧹 [REAPER] Releasing expired reservations", zap.Int("count", len(page)))

		for _, res := range page {
			if ctx.Err() != nil {
				break
			}
			if _, err := r.reservations.Release(ctx, res.ID); err != nil {
				failed++
				r.failures.Add(ctx, 1)
				r.logger.Error("❌ [REAPER] Failed to release reservation",
					zap.String("reservation_id", res.ID),
					zap.Error(err))
				continue
			}
			released++
			r.released.Add(ctx, 1)
		}

		if len(page) < r.batchSize {
			break
		}
		last := page[len(page)-1]
		cursor = ExpiredCursor{ExpiresAt: last.ExpiresAt, ID: last.ID}
	}

	if released+failed > 0 {
		r.logger.Info("✅ [REAPER] Sweep finished", zap.Int("released", released), zap.Int("failed", failed))
	}
	return released, failed
}
