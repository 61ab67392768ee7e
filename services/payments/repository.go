package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository define as operações de persistência de tentativas de pagamento
type PaymentRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	// LockIdempotencyKey serializa as requisições com a mesma chave até o fim da Tx
	LockIdempotencyKey(ctx context.Context, tx Tx, key string) error
	GetByIdempotencyKey(ctx context.Context, tx Tx, key string) (*PaymentAttempt, error)
	CreatePayment(ctx context.Context, tx Tx, p *PaymentAttempt) error
	GetPayment(ctx context.Context, paymentID string) (*PaymentAttempt, error)
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx inicia uma nova transação
func (r *PostgresPaymentRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

// LockIdempotencyKey usa um advisory lock de transação sobre o hash da chave
func (r *PostgresPaymentRepository) LockIdempotencyKey(ctx context.Context, tx Tx, key string) error {
	pgTx := tx.(*PostgresTx).tx

	if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock idempotency key: %w", err)
	}
	return nil
}

const paymentColumns = `payment_id, COALESCE(idempotency_key, ''), amount, status, card_last4, message, created_at`

func scanPayment(row pgx.Row) (*PaymentAttempt, error) {
	var p PaymentAttempt
	err := row.Scan(
		&p.PaymentID,
		&p.IdempotencyKey,
		&p.Amount,
		&p.Status,
		&p.CardFingerprint,
		&p.Message,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentRepository) GetByIdempotencyKey(ctx context.Context, tx Tx, key string) (*PaymentAttempt, error) {
	pgTx := tx.(*PostgresTx).tx

	p, err := scanPayment(pgTx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to query payment by idempotency key: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) CreatePayment(ctx context.Context, tx Tx, p *PaymentAttempt) error {
	pgTx := tx.(*PostgresTx).tx

	var key *string
	if p.IdempotencyKey != "" {
		key = &p.IdempotencyKey
	}

	_, err := pgTx.Exec(ctx, `
		INSERT INTO payments (payment_id, idempotency_key, amount, status, card_last4, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.PaymentID, key, p.Amount, p.Status, p.CardFingerprint, p.Message, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, p.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *PostgresPaymentRepository) GetPayment(ctx context.Context, paymentID string) (*PaymentAttempt, error) {
	p, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}
