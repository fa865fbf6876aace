// Package memmessagestore is an in-memory messagestore.Store. It serves as a
// reference implementation and backs unit tests for the materialiser and
// processor.
package memmessagestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heraldhq/herald/internal/messagestore"
	"github.com/heraldhq/herald/internal/models"
)

type MemStore struct {
	mu       sync.Mutex
	messages map[string]*models.ScheduledMessage // keyed by id
	identity map[identityKey]string              // dedup index -> id
}

type identityKey struct {
	userID        string
	messageType   models.MessageType
	scheduledDate string
}

var _ messagestore.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		messages: make(map[string]*models.ScheduledMessage),
		identity: make(map[identityKey]string),
	}
}

func (s *MemStore) CreateIfAbsent(ctx context.Context, msg *models.ScheduledMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{msg.UserID, msg.MessageType, msg.ScheduledDate}
	if _, exists := s.identity[key]; exists {
		return false, nil
	}
	cp := *msg
	cp.Status = models.MessageStatusPending
	s.messages[cp.ID] = &cp
	s.identity[key] = cp.ID
	return true, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(msg), nil
}

func (s *MemStore) SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledMessage
	for _, msg := range s.messages {
		if !processable(msg.Status) || msg.ScheduledAt.After(now) || msg.Locked(now) {
			continue
		}
		due = append(due, copyMessage(msg))
	}
	sortBySchedule(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemStore) AcquireLease(ctx context.Context, id, lockID string, now, leaseUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || !processable(msg.Status) || msg.Locked(now) {
		return false, nil
	}
	lock := lockID
	until := leaseUntil
	msg.LockID = &lock
	msg.LockedUntil = &until
	return true, nil
}

func (s *MemStore) ReleaseLease(ctx context.Context, id, lockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.LockID == nil || *msg.LockID != lockID {
		return nil
	}
	msg.LockID = nil
	msg.LockedUntil = nil
	return nil
}

func (s *MemStore) MarkSent(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.Status == models.MessageStatusSent {
		return nil
	}
	sentAt := now
	msg.Status = models.MessageStatusSent
	msg.SentAt = &sentAt
	msg.ErrorMessage = nil
	msg.LockID = nil
	msg.LockedUntil = nil
	return nil
}

func (s *MemStore) MarkFailure(ctx context.Context, id, errMsg string, nextStatus models.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.Status == models.MessageStatusSent {
		return nil
	}
	if nextStatus == models.MessageStatusRetry {
		msg.RetryCount++
	}
	e := errMsg
	msg.Status = nextStatus
	msg.ErrorMessage = &e
	msg.LockID = nil
	msg.LockedUntil = nil
	return nil
}

func (s *MemStore) ListMissed(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missed []*models.ScheduledMessage
	for _, msg := range s.messages {
		if !processable(msg.Status) || !msg.ScheduledAt.Before(now) {
			continue
		}
		missed = append(missed, copyMessage(msg))
	}
	sortBySchedule(missed)
	return missed, nil
}

// DeleteByUser mirrors the FK cascade the SQL schema provides.
func (s *MemStore) DeleteByUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, msg := range s.messages {
		if msg.UserID == userID {
			delete(s.identity, identityKey{msg.UserID, msg.MessageType, msg.ScheduledDate})
			delete(s.messages, id)
		}
	}
}

func processable(status models.MessageStatus) bool {
	return status == models.MessageStatusPending || status == models.MessageStatusRetry
}

func sortBySchedule(msgs []*models.ScheduledMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].ScheduledAt.Equal(msgs[j].ScheduledAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].ScheduledAt.Before(msgs[j].ScheduledAt)
	})
}

func copyMessage(msg *models.ScheduledMessage) *models.ScheduledMessage {
	cp := *msg
	if msg.SentAt != nil {
		v := *msg.SentAt
		cp.SentAt = &v
	}
	if msg.ErrorMessage != nil {
		v := *msg.ErrorMessage
		cp.ErrorMessage = &v
	}
	if msg.LockID != nil {
		v := *msg.LockID
		cp.LockID = &v
	}
	if msg.LockedUntil != nil {
		v := *msg.LockedUntil
		cp.LockedUntil = &v
	}
	return &cp
}
