package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateIsIdempotent(t *testing.T) {
	req := require.New(t)
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	req.NoError(Migrate(dsn))
	req.NoError(Migrate(dsn))

	db, err := OpenPostgres(context.Background(), dsn, DefaultPoolConfig())
	req.NoError(err)
	defer db.Close()

	for _, table := range []string{"messages", "banned_users"} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		req.NoError(err)
		req.True(exists, table)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 4)
}
