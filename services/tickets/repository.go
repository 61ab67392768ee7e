package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx abstrai a transação que mantém o lock da reserva até Commit ou Rollback
type Tx interface {
	Commit() error
	Rollback() error
}

// ReservationRepository persiste reservas; transições usam GetReservationForUpdate dentro de uma Tx
type ReservationRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	GetReservationForUpdate(ctx context.Context, tx Tx, id string) (*Reservation, error)
	UpdateReservationState(ctx context.Context, tx Tx, r *Reservation) error
	ListActiveByUser(ctx context.Context, userID string) ([]Reservation, error)
	// ListExpired pagina as reservas ACTIVE vencidas em ordem de (expires_at, id), a partir de after
	ListExpired(ctx context.Context, now time.Time, after ExpiredCursor, limit int) ([]Reservation, error)
}

// ExpiredCursor marca a última reserva vista numa varredura; o valor zero começa do início
type ExpiredCursor struct {
	ExpiresAt time.Time
	ID        string
}

// TicketRepository persiste ingressos; payment_id é único
type TicketRepository interface {
	// CreateTicket retorna o ingresso existente e created=false se o pagamento já gerou um ingresso
	CreateTicket(ctx context.Context, t *Ticket) (stored *Ticket, created bool, err error)
	GetTicket(ctx context.Context, ticketID string) (*Ticket, error)
	GetTicketByPayment(ctx context.Context, paymentID string) (*Ticket, error)
	ListTicketsByUser(ctx context.Context, userID string) ([]Ticket, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
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
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

const reservationColumns = `id, ticket_type_id, user_id, quantity, state, created_at, expires_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(
		&res.ID,
		&res.TicketTypeID,
		&res.UserID,
		&res.Quantity,
		&res.State,
		&res.CreatedAt,
		&res.ExpiresAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *PostgresRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		res.ID,
		res.TicketTypeID,
		res.UserID,
		res.Quantity,
		res.State,
		res.CreatedAt,
		res.ExpiresAt,
		res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return res, nil
}

// GetReservationForUpdate obtém a reserva com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetReservationForUpdate(ctx context.Context, tx Tx, id string) (*Reservation, error) {
	pgTx := tx.(*PostgresTx).tx

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(pgTx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation for update: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) UpdateReservationState(ctx context.Context, tx Tx, res *Reservation) error {
	pgTx := tx.(*PostgresTx).tx

	query := `
		UPDATE reservations
		SET state = $2,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := pgTx.Exec(ctx, query, res.ID, res.State, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update reservation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND state = 'ACTIVE'
		ORDER BY created_at
	`
	return r.queryReservations(ctx, query, userID)
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time, after ExpiredCursor, limit int) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE state = 'ACTIVE' AND expires_at < $1
		  AND (expires_at, id) > ($2, $3)
		ORDER BY expires_at, id
		LIMIT $4
	`
	return r.queryReservations(ctx, query, now, after.ExpiresAt, after.ID, limit)
}

func (r *PostgresRepository) queryReservations(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	out := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

const ticketColumns = `ticket_id, user_id, ticket_type_id, event_name, ticket_type_name, quantity, unit_price, total, payment_id, status, created_at`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.TicketID,
		&t.UserID,
		&t.TicketTypeID,
		&t.EventName,
		&t.TicketTypeName,
		&t.Quantity,
		&t.UnitPrice,
		&t.Total,
		&t.PaymentID,
		&t.Status,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicket insere o ingresso; o UNIQUE(payment_id) garante um ingresso por pagamento
func (r *PostgresRepository) CreateTicket(ctx context.Context, t *Ticket) (*Ticket, bool, error) {
	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		t.TicketID,
		t.UserID,
		t.TicketTypeID,
		t.EventName,
		t.TicketTypeName,
		t.Quantity,
		t.UnitPrice,
		t.Total,
		t.PaymentID,
		t.Status,
		t.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert ticket: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return t, true, nil
	}

	existing, err := scanTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE payment_id = $1`, t.PaymentID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load ticket for payment %s: %w", t.PaymentID, err)
	}
	return existing, false, nil
}

func (r *PostgresRepository) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) GetTicketByPayment(ctx context.Context, paymentID string) (*Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket for payment %s: %w", paymentID, err)
	}
	return t, nil
}

func (r *PostgresRepository) ListTicketsByUser(ctx context.Context, userID string) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	out := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
