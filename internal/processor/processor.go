package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/internal/emailclient"
	"github.com/heraldhq/herald/internal/idgen"
	"github.com/heraldhq/herald/internal/logging"
	"github.com/heraldhq/herald/internal/messagestore"
	"github.com/heraldhq/herald/internal/models"
)

const (
	defaultMaxRetries    = 3
	defaultBatchLimit    = 100
	defaultLeaseDuration = 5 * time.Minute
)

// UserGetter resolves the recipient of a message. FindByID returns nil when
// the user no longer exists.
type UserGetter interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DeliveryClient sends a rendered greeting to its recipient.
type DeliveryClient interface {
	Send(ctx context.Context, email string, message string) error
}

// Processor drains due messages: it claims each record with a lease, delivers
// it, and records the outcome. Multiple processors may run against the same
// store; the lease CAS guarantees at most one of them delivers a given record.
type Processor struct {
	store         messagestore.Store
	users         UserGetter
	client        DeliveryClient
	logger        *logging.Logger
	maxRetries    int
	batchLimit    int
	leaseDuration time.Duration
	now           func() time.Time
}

type Option func(*Processor)

func WithMaxRetries(maxRetries int) Option {
	return func(p *Processor) { p.maxRetries = maxRetries }
}

func WithBatchLimit(limit int) Option {
	return func(p *Processor) { p.batchLimit = limit }
}

func WithLeaseDuration(d time.Duration) Option {
	return func(p *Processor) { p.leaseDuration = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(store messagestore.Store, users UserGetter, client DeliveryClient, logger *logging.Logger, opts ...Option) *Processor {
	p := &Processor{
		store:         store,
		users:         users,
		client:        client,
		logger:        logger,
		maxRetries:    defaultMaxRetries,
		batchLimit:    defaultBatchLimit,
		leaseDuration: defaultLeaseDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDue delivers one batch of due messages. Per-record failures are
// recorded on the record and do not fail the pass.
func (p *Processor) ProcessDue(ctx context.Context) error {
	now := p.now()
	due, err := p.store.SelectDue(ctx, now, p.batchLimit)
	if err != nil {
		return fmt.Errorf("selecting due messages: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	p.logger.Ctx(ctx).Info("processing due messages", zap.Int("count", len(due)))
	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processRecord(ctx, msg.ID); err != nil {
			return err
		}
	}
	return nil
}

// Recover re-dispatches messages whose send time passed while no processor
// was running. It reuses the normal pipeline, so lease, retry accounting, and
// the sent guard all apply.
func (p *Processor) Recover(ctx context.Context) error {
	missed, err := p.store.ListMissed(ctx, p.now())
	if err != nil {
		return fmt.Errorf("listing missed messages: %w", err)
	}
	if len(missed) == 0 {
		return nil
	}

	p.logger.Ctx(ctx).Info("recovering missed messages", zap.Int("count", len(missed)))
	for _, msg := range missed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processRecord(ctx, msg.ID); err != nil {
			return err
		}
	}
	return nil
}

// processRecord runs one delivery attempt cycle for a single record. Only
// store errors propagate; delivery failures are absorbed into the record's
// status.
func (p *Processor) processRecord(ctx context.Context, id string) error {
	now := p.now()
	lockID := idgen.NewLockID()

	acquired, err := p.store.AcquireLease(ctx, id, lockID, now, now.Add(p.leaseDuration))
	if err != nil {
		return fmt.Errorf("acquiring lease for %s: %w", id, err)
	}
	if !acquired {
		// Another processor holds it, or it reached a terminal state since
		// the select.
		p.logger.Ctx(ctx).Debug("lease not acquired, skipping", zap.String("message_id", id))
		return nil
	}

	// Re-read under the lease; the selected snapshot may be stale.
	msg, err := p.store.Get(ctx, id)
	if err != nil {
		p.release(ctx, id, lockID)
		return fmt.Errorf("reading message %s: %w", id, err)
	}
	if msg == nil || msg.Terminal() {
		p.release(ctx, id, lockID)
		return nil
	}

	if msg.RetryCount >= p.maxRetries {
		// Keep the last real failure reason on the record; the exhaustion
		// itself is not a new failure.
		reason := "retry limit exhausted"
		if msg.ErrorMessage != nil && *msg.ErrorMessage != "" {
			reason = *msg.ErrorMessage
		}
		p.logger.Ctx(ctx).Warn("retry limit exhausted, marking failed",
			zap.String("message_id", id),
			zap.Int("retry_count", msg.RetryCount))
		if err := p.store.MarkFailure(ctx, id, reason, models.MessageStatusFailed); err != nil {
			return fmt.Errorf("marking message %s failed: %w", id, err)
		}
		return nil
	}

	user, err := p.users.FindByID(ctx, msg.UserID)
	if err != nil {
		p.release(ctx, id, lockID)
		return fmt.Errorf("resolving user %s: %w", msg.UserID, err)
	}
	if user == nil {
		// Directory row vanished between materialization and delivery. Leave
		// the record alone; the cascade will collect it.
		p.logger.Ctx(ctx).Warn("recipient no longer exists, releasing",
			zap.String("message_id", id),
			zap.String("user_id", msg.UserID))
		p.release(ctx, id, lockID)
		return nil
	}

	sendErr := p.client.Send(ctx, user.Email, msg.MessageBody)

	// Outcome writes must land even when the context was cancelled mid-tick;
	// otherwise the record stays leased until the lease expires.
	storeCtx := context.WithoutCancel(ctx)

	if sendErr == nil {
		if err := p.store.MarkSent(storeCtx, id, p.now()); err != nil {
			return fmt.Errorf("marking message %s sent: %w", id, err)
		}
		p.logger.Ctx(ctx).Info("message delivered",
			zap.String("message_id", id),
			zap.String("user_id", msg.UserID),
			zap.String("message_type", string(msg.MessageType)))
		return nil
	}

	if ctx.Err() != nil {
		// Shutdown interrupted the delivery. Release the lease instead of
		// recording a failure so the restart retries without having spent
		// retry budget.
		p.logger.Ctx(ctx).Info("delivery interrupted by shutdown, releasing",
			zap.String("message_id", id))
		p.release(ctx, id, lockID)
		return ctx.Err()
	}

	p.logger.Ctx(ctx).Warn("delivery failed",
		zap.String("message_id", id),
		zap.String("user_id", msg.UserID),
		zap.Int("retry_count", msg.RetryCount),
		zap.String("classification", emailclient.Classification(sendErr)),
		zap.Error(sendErr))
	if err := p.store.MarkFailure(storeCtx, id, sendErr.Error(), models.MessageStatusRetry); err != nil {
		return fmt.Errorf("marking message %s for retry: %w", id, err)
	}
	return nil
}

func (p *Processor) release(ctx context.Context, id, lockID string) {
	// Lease cleanup must survive the cancellation that triggered it.
	if err := p.store.ReleaseLease(context.WithoutCancel(ctx), id, lockID); err != nil {
		p.logger.Ctx(ctx).Error("releasing lease",
			zap.String("message_id", id),
			zap.Error(err))
	}
}
