// Package idgen generates identifiers for scheduled messages and lease
// tokens.
package idgen

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const messageIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewMessageID returns a prefixed nanoid for a scheduled message.
func NewMessageID() string {
	id, err := gonanoid.Generate(messageIDAlphabet, 21)
	if err != nil {
		// gonanoid only fails when the system entropy source is broken;
		// fall back to a UUID rather than propagate an error nobody can act on.
		return "msg_" + uuid.New().String()
	}
	return "msg_" + id
}

// NewUserID returns a prefixed nanoid for a directory user.
func NewUserID() string {
	id, err := gonanoid.Generate(messageIDAlphabet, 21)
	if err != nil {
		return "usr_" + uuid.New().String()
	}
	return "usr_" + id
}

// NewLockID returns a unique lease token for the due processor.
func NewLockID() string {
	return uuid.New().String()
}
