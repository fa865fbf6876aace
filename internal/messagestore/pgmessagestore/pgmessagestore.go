// Package pgmessagestore is the PostgreSQL messagestore.Store. Dedup relies
// on the unique index over (user_id, message_type, scheduled_date); lease
// acquisition is a single conditional UPDATE, so concurrent processors race
// on row count, not on application state.
package pgmessagestore

import (
	"context"
	"fmt"
	"time"

	"github.com/heraldhq/herald/internal/messagestore"
	"github.com/heraldhq/herald/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	db *pgxpool.Pool
}

var _ messagestore.Store = (*pgStore)(nil)

func New(db *pgxpool.Pool) messagestore.Store {
	return &pgStore{db: db}
}

const messageColumns = `
	id,
	user_id,
	message_type,
	message_body,
	status,
	scheduled_date,
	scheduled_at,
	sent_at,
	retry_count,
	error_message,
	lock_id,
	locked_until,
	created_at`

func (s *pgStore) CreateIfAbsent(ctx context.Context, msg *models.ScheduledMessage) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO scheduled_messages (
			id, user_id, message_type, message_body, status,
			scheduled_date, scheduled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, message_type, scheduled_date) DO NOTHING`,
		msg.ID, msg.UserID, msg.MessageType, msg.MessageBody, models.MessageStatusPending,
		msg.ScheduledDate, msg.ScheduledAt, msg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert scheduled message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE id = $1`, id)

	msg, err := scanMessage(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled message: %w", err)
	}
	return msg, nil
}

func (s *pgStore) SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status IN ($1, $2)
		AND scheduled_at <= $3
		AND (lock_id IS NULL OR locked_until <= $3)
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $4`,
		models.MessageStatusPending, models.MessageStatusRetry, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *pgStore) AcquireLease(ctx context.Context, id, lockID string, now, leaseUntil time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages
		SET lock_id = $2, locked_until = $3
		WHERE id = $1
		AND status IN ($4, $5)
		AND (lock_id IS NULL OR locked_until <= $6)`,
		id, lockID, leaseUntil,
		models.MessageStatusPending, models.MessageStatusRetry, now)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) ReleaseLease(ctx context.Context, id, lockID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages
		SET lock_id = NULL, locked_until = NULL
		WHERE id = $1 AND lock_id = $2`,
		id, lockID)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (s *pgStore) MarkSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages
		SET status = $2, sent_at = $3, error_message = NULL,
			lock_id = NULL, locked_until = NULL
		WHERE id = $1 AND status != $2`,
		id, models.MessageStatusSent, now)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (s *pgStore) MarkFailure(ctx context.Context, id, errMsg string, nextStatus models.MessageStatus) error {
	bump := 0
	if nextStatus == models.MessageStatusRetry {
		bump = 1
	}
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages
		SET status = $2, retry_count = retry_count + $3, error_message = $4,
			lock_id = NULL, locked_until = NULL
		WHERE id = $1 AND status != $5`,
		id, nextStatus, bump, errMsg, models.MessageStatusSent)
	if err != nil {
		return fmt.Errorf("mark failure: %w", err)
	}
	return nil
}

func (s *pgStore) ListMissed(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status IN ($1, $2)
		AND scheduled_at < $3
		ORDER BY scheduled_at ASC, id ASC`,
		models.MessageStatusPending, models.MessageStatusRetry, now)
	if err != nil {
		return nil, fmt.Errorf("list missed: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]*models.ScheduledMessage, error) {
	var msgs []*models.ScheduledMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled messages: %w", err)
	}
	return msgs, nil
}

func scanMessage(row pgx.Row) (*models.ScheduledMessage, error) {
	var msg models.ScheduledMessage
	if err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.MessageType,
		&msg.MessageBody,
		&msg.Status,
		&msg.ScheduledDate,
		&msg.ScheduledAt,
		&msg.SentAt,
		&msg.RetryCount,
		&msg.ErrorMessage,
		&msg.LockID,
		&msg.LockedUntil,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
