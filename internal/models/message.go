package models

import "time"

type MessageType string

const (
	MessageTypeBirthday    MessageType = "birthday"
	MessageTypeAnniversary MessageType = "anniversary"
)

// Noun is the event name used when rendering the greeting body.
func (t MessageType) Noun() string {
	return string(t)
}

type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusRetry   MessageStatus = "retry"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// ScheduledMessage is a materialized event occurrence. The tuple
// (UserID, MessageType, ScheduledDate) is its identity; the store enforces
// uniqueness over it. ScheduledDate is the civil date in the user's zone at
// creation time and is never derived from ScheduledAt.
type ScheduledMessage struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	MessageType   MessageType   `json:"message_type"`
	MessageBody   string        `json:"message_body"`
	Status        MessageStatus `json:"status"`
	ScheduledDate string        `json:"scheduled_date"` // civil YYYY-MM-DD
	ScheduledAt   time.Time     `json:"scheduled_at"`   // UTC instant of intended send
	SentAt        *time.Time    `json:"sent_at,omitempty"`
	RetryCount    int           `json:"retry_count"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
	LockID        *string       `json:"lock_id,omitempty"`
	LockedUntil   *time.Time    `json:"locked_until,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Locked reports whether the record holds a live lease. An expired lease is
// equivalent to unlocked.
func (m *ScheduledMessage) Locked(now time.Time) bool {
	return m.LockID != nil && m.LockedUntil != nil && m.LockedUntil.After(now)
}

// Terminal reports whether the record reached a state the processor must not
// touch again.
func (m *ScheduledMessage) Terminal() bool {
	return m.Status == MessageStatusSent || m.Status == MessageStatusFailed
}
