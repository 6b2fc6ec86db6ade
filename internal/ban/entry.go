//go:generate go run go.uber.org/mock/mockgen -source=entry.go -destination=../mocks/mock_ban_store.go -package=mocks -mock_names=Store=MockBanStore

// Package ban holds the ban table keyed by client network address, its
// Postgres, Redis and in-memory backends, and the Gate consulted when a
// connection is admitted.
package ban

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBanned is returned by Gate.Admit for an address with an active ban.
	ErrBanned = errors.New("ban: address is banned")
	// ErrEmptyAddress rejects writes without a primary key.
	ErrEmptyAddress = errors.New("ban: address is empty")
)

// Entry is one row of the ban table. A nil ExpiresAt means the ban never
// expires on its own.
type Entry struct {
	Address   string     `json:"ip"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ActiveAt reports whether the entry still refuses connections at now.
func (e Entry) ActiveAt(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Store is the shared ban table.
type Store interface {
	// Lookup returns the entry for address, or nil when there is none.
	// Expired entries are returned as stored; callers evaluate expiry.
	Lookup(ctx context.Context, address string) (*Entry, error)
	// Upsert creates or replaces the entry for entry.Address.
	Upsert(ctx context.Context, entry Entry) error
	// Delete removes the entry for address. Deleting a missing entry is not
	// an error.
	Delete(ctx context.Context, address string) error
	// List returns every stored entry ordered by address.
	List(ctx context.Context) ([]Entry, error)
}
