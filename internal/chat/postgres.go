package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// PostgresStore persists messages in the messages table. Ids come from the
// BIGSERIAL sequence, so they are unique and increase with commit order of
// the INSERTs that claimed them.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a message store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Append inserts one row and returns it as stored. The single INSERT …
// RETURNING statement is atomic: a failed write leaves no row behind.
func (s *PostgresStore) Append(ctx context.Context, username, text string) (Message, error) {
	if err := ValidateMessage(username, text); err != nil {
		return Message{}, err
	}

	const query = `
		INSERT INTO messages (username, text, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	msg := Message{Username: username, Text: text}
	err := s.db.QueryRowContext(ctx, query, username, text, s.now().UTC()).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("chat: append: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

// Recent selects the newest rows by id and returns them oldest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	const query = `
		SELECT id, username, text, created_at
		FROM messages
		ORDER BY id DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: recent: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: recent scan: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: recent rows: %w", err)
	}

	return lo.Reverse(msgs), nil
}
