package ban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps the ban table in the banned_users relation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a ban store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Lookup(ctx context.Context, address string) (*Entry, error) {
	const query = `
		SELECT address, reason, expires_at
		FROM banned_users
		WHERE address = $1`

	var (
		e       Entry
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, address).Scan(&e.Address, &e.Reason, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ban: lookup: %w", err)
	}
	if expires.Valid {
		t := expires.Time.UTC()
		e.ExpiresAt = &t
	}
	return &e, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entry Entry) error {
	if entry.Address == "" {
		return ErrEmptyAddress
	}

	const query = `
		INSERT INTO banned_users (address, reason, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at, created_at = NOW()`

	var expires sql.NullTime
	if entry.ExpiresAt != nil {
		expires = sql.NullTime{Time: entry.ExpiresAt.UTC(), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query, entry.Address, entry.Reason, expires); err != nil {
		return fmt.Errorf("ban: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, address string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM banned_users WHERE address = $1`, address); err != nil {
		return fmt.Errorf("ban: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT address, reason, expires_at
		FROM banned_users
		ORDER BY address`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ban: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			expires sql.NullTime
		)
		if err := rows.Scan(&e.Address, &e.Reason, &expires); err != nil {
			return nil, fmt.Errorf("ban: list scan: %w", err)
		}
		if expires.Valid {
			t := expires.Time.UTC()
			e.ExpiresAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ban: list rows: %w", err)
	}
	return entries, nil
}
