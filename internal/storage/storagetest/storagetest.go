// Package storagetest connects tests to a disposable Postgres database named
// by TEST_DATABASE_URL.
package storagetest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stargaze/chat-gateway/internal/storage"
)

// Open migrates the test database, empties both tables and returns a handle
// closed at test cleanup. It skips the test when TEST_DATABASE_URL is unset
// or the database is unreachable.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := storage.OpenPostgres(context.Background(), dsn, storage.DefaultPoolConfig())
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if err := storage.Migrate(dsn); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE messages RESTART IDENTITY; TRUNCATE banned_users`); err != nil {
		db.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
