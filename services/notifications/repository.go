package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DeliveryLog registra cada notificação e o resultado da entrega
type DeliveryLog interface {
	Record(ctx context.Context, n *Notification) error
	MarkStatus(ctx context.Context, id string, status DeliveryStatus, reason string, at time.Time) error
	Get(ctx context.Context, id string) (*Notification, error)
}

// SQLDeliveryLog usa database/sql com o driver lib/pq
type SQLDeliveryLog struct {
	db *sql.DB
}

func NewSQLDeliveryLog(db *sql.DB) *SQLDeliveryLog {
	return &SQLDeliveryLog{db: db}
}

func (r *SQLDeliveryLog) Record(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (notification_id, type, recipient, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		n.ID, n.Type, n.Recipient, data, n.Status, n.CreatedAt); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func (r *SQLDeliveryLog) MarkStatus(ctx context.Context, id string, status DeliveryStatus, reason string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $2,
			error = $3,
			sent_at = CASE WHEN $2 = 'SENT' THEN $4 ELSE sent_at END
		WHERE notification_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, reason, at)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *SQLDeliveryLog) Get(ctx context.Context, id string) (*Notification, error) {
	query := `
		SELECT notification_id, type, recipient, data, status, error, created_at, sent_at
		FROM notifications
		WHERE notification_id = $1
	`
	var (
		n      Notification
		data   []byte
		sentAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.Type, &n.Recipient, &data, &n.Status, &n.Error, &n.CreatedAt, &sentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	return &n, nil
}

// MemoryDeliveryLog é o log de entregas em memória
type MemoryDeliveryLog struct {
	mu    sync.RWMutex
	items map[string]Notification
}

func NewMemoryDeliveryLog() *MemoryDeliveryLog {
	return &MemoryDeliveryLog{items: make(map[string]Notification)}
}

func (r *MemoryDeliveryLog) Record(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = *n
	return nil
}

func (r *MemoryDeliveryLog) MarkStatus(_ context.Context, id string, status DeliveryStatus, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.Status = status
	n.Error = reason
	if status == StatusSent {
		n.SentAt = &at
	}
	r.items[id] = n
	return nil
}

func (r *MemoryDeliveryLog) Get(_ context.Context, id string) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return &n, nil
}
