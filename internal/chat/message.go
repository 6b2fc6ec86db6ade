//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_store.go -package=mocks -mock_names=Store=MockMessageStore

// Package chat holds the durable chat message log: the Message record, the
// Store contract and its Postgres and in-memory implementations.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultRecentLimit is the history size handed to clients that do not ask
// for a specific number of messages.
const DefaultRecentLimit = 50

var (
	ErrEmptyUsername = errors.New("chat: username is empty")
	ErrEmptyText     = errors.New("chat: message text is empty")
	// ErrNULByte rejects U+0000, which Postgres TEXT cannot store. Every
	// backend refuses it so they accept the same messages.
	ErrNULByte = errors.New("chat: message contains a NUL character")
)

// Message is one persisted chat line. ID and CreatedAt are assigned by the
// store; a Message is never modified after Append returns it.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store is the append-only message log.
type Store interface {
	// Append assigns the next id and the current server time, persists the
	// record and returns it. On error nothing is persisted.
	Append(ctx context.Context, username, text string) (Message, error)
	// Recent returns up to limit of the newest messages, oldest first.
	Recent(ctx context.Context, limit int) ([]Message, error)
}

// ValidateMessage checks the content rules the log enforces: both fields
// must be non-empty and free of NUL characters. Neither field has a length
// cap.
func ValidateMessage(username, text string) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if text == "" {
		return ErrEmptyText
	}
	if strings.ContainsRune(username, 0) || strings.ContainsRune(text, 0) {
		return ErrNULByte
	}
	return nil
}

// IsInvalid reports whether err comes from ValidateMessage rather than from
// the storage backend.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrEmptyUsername) || errors.Is(err, ErrEmptyText) || errors.Is(err, ErrNULByte)
}
