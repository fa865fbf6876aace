package materializer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/civil"
	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/logging"
	"github.com/heraldhq/herald/internal/models"
)

const (
	defaultSendHour   = 9
	defaultSendMinute = 0
)

// UserDirectory lists the users eligible for greetings.
type UserDirectory interface {
	ListActive(ctx context.Context) ([]*models.User, error)
}

// MessageCreator inserts a materialised message unless its identity already
// exists.
type MessageCreator interface {
	CreateIfAbsent(ctx context.Context, msg *models.ScheduledMessage) (bool, error)
}

// Materializer turns recurring anchors (birthdays, anniversaries) into
// concrete scheduled messages for the current local day of each user. Running
// it any number of times per day is safe: the store's identity constraint
// absorbs duplicates.
type Materializer struct {
	users        UserDirectory
	store        MessageCreator
	logger       *logging.Logger
	now          func() time.Time
	sendHour     int
	sendMinute   int
	messageTypes []models.MessageType
}

type Option func(*Materializer)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithSendTime sets the local wall-clock time messages are scheduled at.
func WithSendTime(hour, minute int) Option {
	return func(m *Materializer) {
		m.sendHour = hour
		m.sendMinute = minute
	}
}

func WithMessageTypes(types ...models.MessageType) Option {
	return func(m *Materializer) { m.messageTypes = types }
}

func New(users UserDirectory, store MessageCreator, logger *logging.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		users:        users,
		store:        store,
		logger:       logger,
		now:          time.Now,
		sendHour:     defaultSendHour,
		sendMinute:   defaultSendMinute,
		messageTypes: []models.MessageType{models.MessageTypeBirthday, models.MessageTypeAnniversary},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaterializeToday scans all active users and creates a message for each
// anchor that falls on the user's current local date. A bad record (invalid
// zone, malformed anchor) is logged and skipped so one user cannot block the
// rest; only listing users or store writes fail the pass.
func (m *Materializer) MaterializeToday(ctx context.Context) error {
	users, err := m.users.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}

	now := m.now()
	created := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := m.materializeUser(ctx, user, now)
		if err != nil {
			return err
		}
		created += n
	}

	m.logger.Ctx(ctx).Info("materialization pass complete",
		zap.Int("users", len(users)),
		zap.Int("created", created))
	return nil
}

func (m *Materializer) materializeUser(ctx context.Context, user *models.User, now time.Time) (int, error) {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		m.logger.Ctx(ctx).Warn("skipping user with unknown timezone",
			zap.String("user_id", user.ID),
			zap.String("timezone", user.Timezone))
		return 0, nil
	}
	today := civil.Today(now, loc)

	created := 0
	for _, messageType := range m.messageTypes {
		anchor, ok := user.AnchorFor(messageType)
		if !ok {
			continue
		}
		anchorDate, err := civil.ParseDate(anchor)
		if err != nil {
			m.logger.Ctx(ctx).Warn("skipping malformed anchor date",
				zap.String("user_id", user.ID),
				zap.String("message_type", string(messageType)),
				zap.String("anchor", anchor))
			continue
		}
		if !civil.SameMonthDay(today, anchorDate) {
			continue
		}

		msg := &models.ScheduledMessage{
			ID:            idgen.NewMessageID(),
			UserID:        user.ID,
			MessageType:   messageType,
			MessageBody:   fmt.Sprintf("Hey, %s it's your %s", user.FullName(), messageType.Noun()),
			Status:        models.MessageStatusPending,
			ScheduledDate: today.String(),
			ScheduledAt:   today.At(m.sendHour, m.sendMinute, loc),
		}
		inserted, err := m.store.CreateIfAbsent(ctx, msg)
		if err != nil {
			return created, fmt.Errorf("creating scheduled message for user %s: %w", user.ID, err)
		}
		if inserted {
			created++
			m.logger.Ctx(ctx).Info("scheduled message materialized",
				zap.String("message_id", msg.ID),
				zap.String("user_id", user.ID),
				zap.String("message_type", string(messageType)),
				zap.Time("scheduled_at", msg.ScheduledAt))
		}
	}
	return created, nil
}
