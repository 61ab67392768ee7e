package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/inventory"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/notification"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/payment"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/tickets"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/config"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpserver"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/logging"
	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/telemetry"
)

const serviceName = "orchestration-service"

type Config struct {
	Port                 string
	LogLevel             string
	OTLPEndpoint         string
	InventoryURL         string
	TicketsURL           string
	PaymentsURL          string
	NotificationsURL     string
	ConnectTimeout       time.Duration
	PaymentRetryAttempts int
	PaymentRetryBackoff  time.Duration
	Breaker              payment.BreakerConfig
	CompensationTimeout  time.Duration
	KafkaBrokers         []string
	CriticalTopic        string
}

func loadConfig() Config {
	config.Load()

	return Config{
		Port:                 config.GetEnv("PORT", "8080"),
		LogLevel:             config.GetEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:         config.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		InventoryURL:         config.GetEnv("INVENTORY_SERVICE_URL", "http://localhost:8081"),
		TicketsURL:           config.GetEnv("TICKETS_SERVICE_URL", "http://localhost:8082"),
		PaymentsURL:          config.GetEnv("PAYMENTS_SERVICE_URL", "http://localhost:8083"),
		NotificationsURL:     config.GetEnv("NOTIFICATIONS_SERVICE_URL", "http://localhost:8084"),
		ConnectTimeout:       config.GetEnvDuration("HTTP_CONNECT_TIMEOUT", httpclient.DefaultConnectTimeout),
		PaymentRetryAttempts: config.GetEnvInt("PAYMENT_RETRY_ATTEMPTS", 3),
		PaymentRetryBackoff:  config.GetEnvDuration("PAYMENT_RETRY_INITIAL_BACKOFF", time.Second),
		Breaker: payment.BreakerConfig{
			WindowSize:           config.GetEnvInt("PAYMENT_BREAKER_WINDOW", 10),
			MinimumCalls:         config.GetEnvInt("PAYMENT_BREAKER_MIN_CALLS", 5),
			FailureRateThreshold: config.GetEnvFloat("PAYMENT_BREAKER_FAILURE_RATE", 0.5),
			OpenDuration:         config.GetEnvDuration("PAYMENT_BREAKER_OPEN_DURATION", 30*time.Second),
			HalfOpenCalls:        config.GetEnvInt("PAYMENT_BREAKER_HALF_OPEN_CALLS", 3),
		},
		CompensationTimeout: config.GetEnvDuration("COMPENSATION_TIMEOUT", DefaultCompensationTimeout),
		KafkaBrokers:        config.GetEnvList("KAFKA_BROKERS"),
		CriticalTopic:       config.GetEnv("CRITICAL_TOPIC", DefaultCriticalTopic),
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

	if err := RegisterValidators(); err != nil {
		return err
	}

	catalog := inventory.NewClient(httpclient.Config{
		BaseURL:        cfg.InventoryURL,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    10 * time.Second,
	})
	ticketClient := tickets.NewClient(httpclient.Config{
		BaseURL:        cfg.TicketsURL,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    tickets.DefaultReadTimeout,
	})
	paymentClient := payment.NewClient(
		httpclient.Config{
			BaseURL:        cfg.PaymentsURL,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    payment.DefaultReadTimeout,
		},
		payment.WithRetry(cfg.PaymentRetryAttempts, cfg.PaymentRetryBackoff),
		payment.WithBreaker(payment.NewCircuitBreaker(cfg.Breaker)),
		payment.WithLogger(logger),
	)
	notifier := notification.NewClient(httpclient.Config{
		BaseURL:        cfg.NotificationsURL,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    notification.DefaultReadTimeout,
	}, logger)

	escalator, closeEscalator := newEscalator(cfg, logger)
	defer closeEscalator()

	useCase := NewPurchaseUseCase(
		catalog,
		ticketClient,
		paymentClient,
		ticketClient,
		notifier,
		escalator,
		cfg.CompensationTimeout,
		logger,
		otel.Tracer(serviceName),
	)
	handler := NewPurchaseHandler(useCase, func() string {
		return string(paymentClient.Breaker().State())
	}, logger)

	router := httpserver.NewRouter(serviceName)
	handler.RegisterRoutes(router)

	logger.Info("🚀 Orchestration Service started",
		zap.String("port", cfg.Port),
		zap.Int("payment_retry_attempts", cfg.PaymentRetryAttempts),
		zap.Duration("compensation_timeout", cfg.CompensationTimeout),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers))
	return httpserver.Serve(ctx, ":"+cfg.Port, router, logger)
}

func newEscalator(cfg Config, logger *zap.Logger) (Escalator, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, critical inconsistencies will only be logged")
		return NewLogEscalator(logger), func() {}
	}
	escalator := NewKafkaEscalator(cfg.KafkaBrokers, cfg.CriticalTopic, logger)
	return escalator, func() {
		if err := escalator.Close(); err != nil {
			logger.Warn("Error closing kafka writer", zap.Error(err))
		}
	}
}
