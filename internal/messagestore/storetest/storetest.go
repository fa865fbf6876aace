// Package storetest is the conformance suite every messagestore.Store
// implementation must pass. It pins the semantics the materialiser and due
// processor depend on: identity dedup, lease atomicity, status transitions,
// and due-selection ordering.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/messagestore"
	"github.com/heraldhq/herald/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds a fresh store plus a function registering a user id the
// suite may reference (SQL stores need the FK parent row; the mem store can
// no-op).
type Factory func(t *testing.T) (store messagestore.Store, addUser func(t *testing.T, userID string))

// Run executes the conformance suite against the given factory.
func Run(t *testing.T, factory Factory) {
	now := time.Date(2026, time.May, 15, 13, 0, 5, 0, time.UTC)

	newMessage := func(userID string, at time.Time) *models.ScheduledMessage {
		return &models.ScheduledMessage{
			ID:            idgen.NewMessageID(),
			UserID:        userID,
			MessageType:   models.MessageTypeBirthday,
			MessageBody:   "Hey, John Doe it's your birthday",
			Status:        models.MessageStatusPending,
			ScheduledDate: at.Format("2006-01-02"),
			ScheduledAt:   at,
			CreatedAt:     at.Add(-7 * time.Hour),
		}
	}

	t.Run("CreateIfAbsentDedup", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")

		first := newMessage("user_1", now.Add(-5*time.Second))
		created, err := store.CreateIfAbsent(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)

		// Same identity, different id: must be absorbed.
		dup := newMessage("user_1", now.Add(-5*time.Second))
		created, err = store.CreateIfAbsent(ctx, dup)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.MessageStatusPending, got.Status)

		gone, err := store.Get(ctx, dup.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		// A different civil date is a different identity.
		other := newMessage("user_1", now.AddDate(1, 0, 0))
		created, err = store.CreateIfAbsent(ctx, other)
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("SelectDueOrderingAndFilters", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		for i := 1; i <= 4; i++ {
			addUser(t, fmt.Sprintf("user_%d", i))
		}

		late := newMessage("user_1", now.Add(-time.Minute))
		early := newMessage("user_2", now.Add(-2*time.Hour))
		future := newMessage("user_3", now.Add(time.Hour))
		locked := newMessage("user_4", now.Add(-time.Hour))

		for _, msg := range []*models.ScheduledMessage{late, early, future, locked} {
			_, err := store.CreateIfAbsent(ctx, msg)
			require.NoError(t, err)
		}
		ok, err := store.AcquireLease(ctx, locked.ID, idgen.NewLockID(), now, now.Add(5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		due, err := store.SelectDue(ctx, now, 100)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, early.ID, due[0].ID)
		assert.Equal(t, late.ID, due[1].ID)

		// Limit truncates from the front of the order.
		due, err = store.SelectDue(ctx, now, 1)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, early.ID, due[0].ID)
	})

	t.Run("LeaseCAS", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")

		msg := newMessage("user_1", now.Add(-time.Minute))
		_, err := store.CreateIfAbsent(ctx, msg)
		require.NoError(t, err)

		lockA, lockB := idgen.NewLockID(), idgen.NewLockID()

		ok, err := store.AcquireLease(ctx, msg.ID, lockA, now, now.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		// Second worker loses the race while the lease is live.
		ok, err = store.AcquireLease(ctx, msg.ID, lockB, now, now.Add(5*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		// An expired lease is equivalent to unlocked.
		later := now.Add(10 * time.Minute)
		ok, err = store.AcquireLease(ctx, msg.ID, lockB, later, later.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ReleaseLeaseRequiresOwnership", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")

		msg := newMessage("user_1", now.Add(-time.Minute))
		_, err := store.CreateIfAbsent(ctx, msg)
		require.NoError(t, err)

		lockA := idgen.NewLockID()
		ok, err := store.AcquireLease(ctx, msg.ID, lockA, now, now.Add(5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// A stale worker with a different token must not release the lease.
		require.NoError(t, store.ReleaseLease(ctx, msg.ID, idgen.NewLockID()))
		got, err := store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, got.Locked(now))

		require.NoError(t, store.ReleaseLease(ctx, msg.ID, lockA))
		got, err = store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, got.Locked(now))
	})

	t.Run("MarkSentIsTerminal", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")

		msg := newMessage("user_1", now.Add(-time.Minute))
		_, err := store.CreateIfAbsent(ctx, msg)
		require.NoError(t, err)

		require.NoError(t, store.MarkSent(ctx, msg.ID, now))
		got, err := store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, got.Status)
		require.NotNil(t, got.SentAt)
		assert.True(t, got.SentAt.Equal(now))
		assert.Nil(t, got.LockID)
		assert.Nil(t, got.ErrorMessage)

		// Sent records are immutable: no lease, no failure, no re-selection.
		ok, err := store.AcquireLease(ctx, msg.ID, idgen.NewLockID(), now, now.Add(5*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.MarkFailure(ctx, msg.ID, "late failure", models.MessageStatusRetry))
		got, err = store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, got.Status)
		assert.Equal(t, 0, got.RetryCount)

		due, err := store.SelectDue(ctx, now.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("MarkFailureRetryAndExhaustion", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")

		msg := newMessage("user_1", now.Add(-time.Minute))
		_, err := store.CreateIfAbsent(ctx, msg)
		require.NoError(t, err)

		lock := idgen.NewLockID()
		ok, err := store.AcquireLease(ctx, msg.ID, lock, now, now.Add(5*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.MarkFailure(ctx, msg.ID, "http 500", models.MessageStatusRetry))
		got, err := store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusRetry, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "http 500", *got.ErrorMessage)
		assert.Nil(t, got.LockID)

		// Retry records stay eligible for selection.
		due, err := store.SelectDue(ctx, now, 100)
		require.NoError(t, err)
		require.Len(t, due, 1)

		// The failed transition does not bump the counter.
		require.NoError(t, store.MarkFailure(ctx, msg.ID, "retry limit exhausted", models.MessageStatusFailed))
		got, err = store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusFailed, got.Status)
		assert.Equal(t, 1, got.RetryCount)

		due, err = store.SelectDue(ctx, now, 100)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("ListMissed", func(t *testing.T) {
		store, addUser := factory(t)
		ctx := context.Background()
		addUser(t, "user_1")
		addUser(t, "user_2")
		addUser(t, "user_3")

		missedMsg := newMessage("user_1", now.Add(-6*time.Hour))
		futureMsg := newMessage("user_2", now.Add(6*time.Hour))
		sentMsg := newMessage("user_3", now.Add(-3*time.Hour))

		for _, msg := range []*models.ScheduledMessage{missedMsg, futureMsg, sentMsg} {
			_, err := store.CreateIfAbsent(ctx, msg)
			require.NoError(t, err)
		}
		require.NoError(t, store.MarkSent(ctx, sentMsg.ID, now))

		missed, err := store.ListMissed(ctx, now)
		require.NoError(t, err)
		require.Len(t, missed, 1)
		assert.Equal(t, missedMsg.ID, missed[0].ID)
	})
}
