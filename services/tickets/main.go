package main

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/inventory"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/config"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/database"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpserver"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/logging"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/telemetry"
)

const serviceName = "tickets-service"

//go:embed schema.sql
var schemaSQL string

type Config struct {
	Port           string
	LogLevel       string
	OTLPEndpoint   string
	StoreBackend   string
	InventoryURL   string
	ReservationTTL time.Duration
	ReaperInterval time.Duration
	Database       database.Config
}

func loadConfig() Config {
	config.Load()

	return Config{
		Port:           config.GetEnv("PORT", "8082"),
		LogLevel:       config.GetEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:   config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		StoreBackend:   config.GetEnv("STORE_BACKEND", "postgres"),
		InventoryURL:   config.GetEnv("INVENTORY_SERVICE_URL", "http://localhost:8081"),
		ReservationTTL: config.GetEnvDuration("RESERVATION_TTL", DefaultReservationTTL),
		ReaperInterval: config.GetEnvDuration("RESERVATION_REAPER_INTERVAL", DefaultReaperInterval),
		Database:       database.ConfigFromEnv("tickets_db"),
	}
}

func main() {
	cfg := loadConfig()

	logger := logging.New(serviceName, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("❌ Service stopped with error", zap.Error(err))
		log.Fatal(err)
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, telemetry.Config{ServiceName: serviceName, Endpoint: cfg.OTLPEndpoint})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down telemetry", zap.Error(err))
		}
	}()

	reservationRepo, ticketRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	stock := inventory.NewClient(httpclient.Config{
		BaseURL:     cfg.InventoryURL,
		ReadTimeout: 10 * time.Second,
	})

	tracer := otel.Tracer(serviceName)
	reservations := NewReservationUseCase(reservationRepo, stock, cfg.ReservationTTL, logger, tracer)
	tickets := NewTicketUseCase(ticketRepo, logger, tracer)
	reaper := NewReaper(reservations, reservationRepo, cfg.ReaperInterval, logger)
	handler := NewTicketHandler(reservations, tickets, logger)

	router := httpserver.NewRouter(serviceName)
	handler.RegisterRoutes(router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(ctx, ":"+cfg.Port, router, logger)
	})
	g.Go(func() error {
		return reaper.Run(ctx)
	})

	logger.Info("🚀 Tickets Service started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.Duration("reservation_ttl", cfg.ReservationTTL))

	return g.Wait()
}

func openStore(ctx context.Context, cfg Config, logger *zap.Logger) (ReservationRepository, TicketRepository, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		repo := NewMemoryRepository()
		return repo, repo, func() {}, nil
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.ApplySchema(ctx, pool, schemaSQL); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		repo := NewPostgresRepository(pool)
		return repo, repo, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
