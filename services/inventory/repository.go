package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository lê eventos e tipos de entrada
type CatalogRepository interface {
	GetTicketType(ctx context.Context, id int64) (*TicketType, error)
	ListTicketTypes(ctx context.Context) ([]TicketType, error)
	GetEvent(ctx context.Context, id int64) (*Event, error)
}

// StockStore mantém os contadores de estoque disponível
type StockStore interface {
	Decrease(ctx context.Context, ticketTypeID int64, quantity int) (remaining int, err error)
	Increase(ctx context.Context, ticketTypeID int64, quantity int) (remaining int, err error)
	Available(ctx context.Context, ticketTypeID int64) (int, error)
}

type PostgresInventoryRepository struct {
	db *pgxpool.Pool
}

func NewPostgresInventoryRepository(db *pgxpool.Pool) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

const ticketTypeColumns = `id, event_id, name, price, available_qty, active, updated_at`

func scanTicketType(row pgx.Row) (*TicketType, error) {
	var tt TicketType
	if err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.AvailableQty, &tt.Active, &tt.UpdatedAt); err != nil {
		return nil, err
	}
	return &tt, nil
}

func (r *PostgresInventoryRepository) GetTicketType(ctx context.Context, id int64) (*TicketType, error) {
	tt, err := scanTicketType(r.db.QueryRow(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketTypeNotFound
		}
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	return tt, nil
}

func (r *PostgresInventoryRepository) ListTicketTypes(ctx context.Context) ([]TicketType, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket types: %w", err)
	}
	defer rows.Close()

	out := []TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		out = append(out, *tt)
	}
	return out, rows.Err()
}

func (r *PostgresInventoryRepository) GetEvent(ctx context.Context, id int64) (*Event, error) {
	var ev Event
	err := r.db.QueryRow(ctx, `
		SELECT id, name, event_date, status
		FROM events
		WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Name, &ev.Date, &ev.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// Decrease retira unidades com lock pessimista (SELECT FOR UPDATE)
func (r *PostgresInventoryRepository) Decrease(ctx context.Context, id int64, quantity int) (int, error) {
	return r.adjust(ctx, id, -quantity)
}

// Increase devolve unidades com lock pessimista (SELECT FOR UPDATE)
func (r *PostgresInventoryRepository) Increase(ctx context.Context, id int64, quantity int) (int, error) {
	return r.adjust(ctx, id, quantity)
}

func (r *PostgresInventoryRepository) adjust(ctx context.Context, id int64, delta int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.Background())

	var available int
	var active bool
	err = tx.QueryRow(ctx, `
		SELECT available_qty, active
		FROM ticket_types
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&available, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTicketTypeNotFound
		}
		return 0, fmt.Errorf("failed to get ticket type for update: %w", err)
	}

	if delta < 0 {
		if !active {
			return available, ErrTicketTypeInactive
		}
		if available < -delta {
			return available, fmt.Errorf("%w: available %d", ErrInsufficientStock, available)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE ticket_types
		SET available_qty = available_qty + $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to update stock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit stock update: %w", err)
	}
	return available + delta, nil
}

func (r *PostgresInventoryRepository) Available(ctx context.Context, id int64) (int, error) {
	var available int
	err := r.db.QueryRow(ctx, `SELECT available_qty FROM ticket_types WHERE id = $1`, id).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTicketTypeNotFound
		}
		return 0, fmt.Errorf("failed to get available stock: %w", err)
	}
	return available, nil
}
