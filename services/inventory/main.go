package main

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/config"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/database"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpserver"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/logging"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/telemetry"
)

const serviceName = "inventory-service"

//go:embed schema.sql
var schemaSQL string

type Config struct {
	Port         string
	LogLevel     string
	OTLPEndpoint string
	StoreBackend string
	// StockBackend vazio usa o mesmo backend do catálogo
	StockBackend string
	RedisAddr    string
	Database     database.Config
}

func loadConfig() Config {
	config.Load()

	return Config{
		Port:         config.GetEnv("PORT", "8081"),
		LogLevel:     config.GetEnv("LOG_LEVEL", "info"),
		OTLPEndpoint: config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		StoreBackend: config.GetEnv("STORE_BACKEND", "postgres"),
		StockBackend: config.GetEnv("STOCK_BACKEND", ""),
		RedisAddr:    config.GetEnv("REDIS_ADDR", "localhost:6379"),
		Database:     database.ConfigFromEnv("inventory_db"),
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

	catalog, stock, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.StockBackend == "redis" {
		redisStock, closeRedis, err := openRedisStock(ctx, cfg, catalog, logger)
		if err != nil {
			return err
		}
		defer closeRedis()
		stock = redisStock
	}

	useCase := NewInventoryUseCase(catalog, stock, logger, otel.Tracer(serviceName))
	handler := NewInventoryHandler(useCase, logger)

	router := httpserver.NewRouter(serviceName)
	handler.RegisterRoutes(router)

	logger.Info("🚀 Inventory Service started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.String("stock", cfg.StockBackend))
	return httpserver.Serve(ctx, ":"+cfg.Port, router, logger)
}

// inventoryStore é implementado pelos repositórios que guardam catálogo e estoque juntos
type inventoryStore interface {
	CatalogRepository
	StockStore
}

func openStore(ctx context.Context, cfg Config, logger *zap.Logger) (CatalogRepository, StockStore, func(), error) {
	var store inventoryStore
	closeFn := func() {}

	switch cfg.StoreBackend {
	case "memory":
		store = NewMemoryInventoryRepository(DemoCatalog())
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.ApplySchema(ctx, pool, schemaSQL); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		store = NewPostgresInventoryRepository(pool)
		closeFn = pool.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return store, store, closeFn, nil
}

func openRedisStock(ctx context.Context, cfg Config, catalog CatalogRepository, logger *zap.Logger) (*RedisStockStore, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	types, err := catalog.ListTicketTypes(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	store := NewRedisStockStore(client)
	if err := store.Seed(ctx, types); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info("✅ Redis stock counters ready", zap.String("addr", cfg.RedisAddr), zap.Int("ticket_types", len(types)))
	return store, func() { _ = client.Close() }, nil
}
