// Package messagestore defines durable persistence for scheduled messages.
//
// Two implementations exist: pgmessagestore (PostgreSQL, production) and
// memmessagestore (in-memory, tests and local development). Both must pass
// the storetest conformance suite.
package messagestore

import (
	"context"
	"time"

	"github.com/heraldhq/herald/internal/models"
)

// Store is the set of primitives the materialiser and due processor rely on.
//
// Correctness rests on two properties every implementation must provide:
// a unique constraint over (user_id, message_type, scheduled_date), and an
// atomic compare-and-set for lease acquisition.
type Store interface {
	// CreateIfAbsent inserts a Pending record, or reports created=false when
	// a record with the same (user, type, date) identity already exists.
	CreateIfAbsent(ctx context.Context, msg *models.ScheduledMessage) (created bool, err error)

	// Get returns the record by id, or nil when it does not exist.
	Get(ctx context.Context, id string) (*models.ScheduledMessage, error)

	// SelectDue returns up to limit records with status pending or retry,
	// scheduled_at <= now, and no live lease, ordered by scheduled_at
	// ascending (id ascending as tiebreak).
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)

	// AcquireLease atomically claims the record for this caller: it sets
	// (lock_id, locked_until) only if the record is unlocked or its lease
	// has expired as of now, and is still in a processable status. Returns
	// true iff the caller now holds the lease.
	AcquireLease(ctx context.Context, id, lockID string, now, leaseUntil time.Time) (bool, error)

	// ReleaseLease clears the lease iff the caller still owns it.
	ReleaseLease(ctx context.Context, id, lockID string) error

	// MarkSent finalizes a successful delivery: status=sent, sent_at=now,
	// lease and error cleared. Sent records are immutable afterwards.
	MarkSent(ctx context.Context, id string, now time.Time) error

	// MarkFailure records a failed processing pass and clears the lease.
	// When nextStatus is retry the retry counter is incremented; the
	// transition to failed happens without a bump, preserving
	// retry_count == maxRetries on exhausted records.
	MarkFailure(ctx context.Context, id, errMsg string, nextStatus models.MessageStatus) error

	// ListMissed returns pending/retry records with scheduled_at < now,
	// ordered like SelectDue. Used by the startup recovery pass.
	ListMissed(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error)
}
