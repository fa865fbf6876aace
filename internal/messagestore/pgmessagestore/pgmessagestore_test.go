package pgmessagestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/messagestore"
	"github.com/heraldhq/herald/internal/messagestore/pgmessagestore"
	"github.com/heraldhq/herald/internal/messagestore/storetest"
	"github.com/heraldhq/herald/internal/models"
	"github.com/heraldhq/herald/internal/util/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGMessageStore_Conformance(t *testing.T) {
	testutil.Integration(t)

	pool := testutil.CreateTestPostgres(t)

	storetest.Run(t, func(t *testing.T) (messagestore.Store, func(*testing.T, string)) {
		truncate(t, pool)
		return pgmessagestore.New(pool), func(t *testing.T, userID string) {
			insertUser(t, pool, userID)
		}
	})
}

func TestPGMessageStore_CascadeDelete(t *testing.T) {
	testutil.Integration(t)

	pool := testutil.CreateTestPostgres(t)
	truncate(t, pool)
	ctx := context.Background()

	insertUser(t, pool, "user_1")
	store := pgmessagestore.New(pool)

	created, err := store.CreateIfAbsent(ctx, storetestMessage("user_1"))
	require.NoError(t, err)
	require.True(t, created)

	_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, "user_1")
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM scheduled_messages WHERE user_id = $1`, "user_1").Scan(&count))
	assert.Equal(t, 0, count)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE scheduled_messages, users CASCADE`)
	require.NoError(t, err)
}

func insertUser(t *testing.T, pool *pgxpool.Pool, userID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, first_name, last_name, email, birthday, timezone, is_active)
		VALUES ($1, 'John', 'Doe', $1 || '@example.com', '1990-05-15', 'America/New_York', TRUE)
		ON CONFLICT (id) DO NOTHING`, userID)
	require.NoError(t, err)
}

func storetestMessage(userID string) *models.ScheduledMessage {
	at := time.Date(2026, time.May, 15, 13, 0, 0, 0, time.UTC)
	return &models.ScheduledMessage{
		ID:            idgen.NewMessageID(),
		UserID:        userID,
		MessageType:   models.MessageTypeBirthday,
		MessageBody:   "Hey, John Doe it's your birthday",
		Status:        models.MessageStatusPending,
		ScheduledDate: "2026-05-15",
		ScheduledAt:   at,
		CreatedAt:     at.Add(-7 * time.Hour),
	}
}
