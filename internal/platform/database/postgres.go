// Package database abre conexões PostgreSQL (pgx pool e database/sql) aguardando o banco subir.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/config"
)

// Config reúne os parâmetros de conexão lidos do ambiente
type Config struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	MaxConns int32
	MinConns int32
	// Tentativas de ping antes de desistir, uma por segundo
	ConnectAttempts int
}

// ConfigFromEnv lê DATABASE_* usando o nome do banco informado como default
func ConfigFromEnv(defaultName string) Config {
	return Config{
		User:            config.GetEnv("DATABASE_USER", "root"),
		Password:        config.GetEnv("DATABASE_PASSWORD", "pass"),
		Host:            config.GetEnv("DATABASE_HOST", "localhost"),
		Port:            config.GetEnv("DATABASE_PORT", "5432"),
		Name:            config.GetEnv("DATABASE_NAME", defaultName),
		MaxConns:        int32(config.GetEnvInt("DATABASE_MAX_CONNS", 10)),
		MinConns:        int32(config.GetEnvInt("DATABASE_MIN_CONNS", 2)),
		ConnectAttempts: config.GetEnvInt("DATABASE_CONNECT_ATTEMPTS", 30),
	}
}

// URL monta a DSN no formato postgres://
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewPool cria o pool pgx e espera o banco responder ao ping
func NewPool(ctx context.Context, cfg Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := waitFor(ctx, cfg, logger, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// OpenSQL abre uma conexão database/sql com o driver lib/pq
func OpenSQL(ctx context.Context, cfg Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetConnMaxLifetime(time.Hour)

	if err := waitFor(ctx, cfg, logger, db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func waitFor(ctx context.Context, cfg Config, logger *zap.Logger, ping func(context.Context) error) error {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if err := ping(ctx); err == nil {
			logger.Info("✅ Connected to database", zap.String("database", cfg.Name))
			return nil
		}
		logger.Info("⏳ Waiting for database...", zap.Int("attempt", i+1), zap.Int("max_attempts", attempts))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return fmt.Errorf("failed to connect to database after %d attempts", attempts)
}

// ApplySchema executa o DDL idempotente do serviço (CREATE ... IF NOT EXISTS)
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, ddl string) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
