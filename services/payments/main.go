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

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/config"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/database"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpserver"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/logging"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/telemetry"
)

const serviceName = "payments-service"

//go:embed schema.sql
var schemaSQL string

type Config struct {
	Port         string
	LogLevel     string
	OTLPEndpoint string
	StoreBackend string
	Database     database.Config
}

func loadConfig() Config {
	config.Load()

	return Config{
		Port:         config.GetEnv("PORT", "8083"),
		LogLevel:     config.GetEnv("LOG_LEVEL", "info"),
		OTLPEndpoint: config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		StoreBackend: config.GetEnv("STORE_BACKEND", "postgres"),
		Database:     database.ConfigFromEnv("payments_db"),
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

	repository, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	useCase := NewPaymentUseCase(repository, logger, otel.Tracer(serviceName))
	handler := NewPaymentHandler(useCase, logger)

	router := httpserver.NewRouter(serviceName)
	handler.RegisterRoutes(router)

	logger.Info("🚀 Payments Service started", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))
	return httpserver.Serve(ctx, ":"+cfg.Port, router, logger)
}

func openStore(ctx context.Context, cfg Config, logger *zap.Logger) (PaymentRepository, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return NewMemoryPaymentRepository(), func() {}, nil
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.ApplySchema(ctx, pool, schemaSQL); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPostgresPaymentRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
