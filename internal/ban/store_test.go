package ban

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stargaze/chat-gateway/internal/storage/storagetest"
)

// runStoreContract exercises the behaviour every Store backend shares. The
// store must start empty.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("lookup missing", func(t *testing.T) {
		e, err := store.Lookup(ctx, "203.0.113.1")
		require.NoError(t, err)
		require.Nil(t, e)
	})

	t.Run("upsert then lookup", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.Upsert(ctx, Entry{Address: "5.6.7.8", Reason: "spam"}))

		e, err := store.Lookup(ctx, "5.6.7.8")
		req.NoError(err)
		req.NotNil(e)
		req.Equal("5.6.7.8", e.Address)
		req.Equal("spam", e.Reason)
		req.Nil(e.ExpiresAt)
	})

	t.Run("upsert replaces by address", func(t *testing.T) {
		req := require.New(t)
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		req.NoError(store.Upsert(ctx, Entry{Address: "5.6.7.8", Reason: "flood", ExpiresAt: &expires}))

		e, err := store.Lookup(ctx, "5.6.7.8")
		req.NoError(err)
		req.Equal("flood", e.Reason)
		req.NotNil(e.ExpiresAt)
		req.True(e.ExpiresAt.Equal(expires))

		entries, err := store.List(ctx)
		req.NoError(err)
		req.Len(entries, 1)
	})

	t.Run("list is ordered by address", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.Upsert(ctx, Entry{Address: "1.2.3.4", Reason: "a"}))
		req.NoError(store.Upsert(ctx, Entry{Address: "9.9.9.9", Reason: "b"}))

		entries, err := store.List(ctx)
		req.NoError(err)
		req.Len(entries, 3)
		req.Equal("1.2.3.4", entries[0].Address)
		req.Equal("5.6.7.8", entries[1].Address)
		req.Equal("9.9.9.9", entries[2].Address)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.Delete(ctx, "1.2.3.4"))
		req.NoError(store.Delete(ctx, "1.2.3.4"))
		req.NoError(store.Delete(ctx, "198.51.100.7"))

		e, err := store.Lookup(ctx, "1.2.3.4")
		req.NoError(err)
		req.Nil(e)

		entries, err := store.List(ctx)
		req.NoError(err)
		req.Len(entries, 2)
	})

	t.Run("empty address rejected", func(t *testing.T) {
		require.ErrorIs(t, store.Upsert(ctx, Entry{Reason: "x"}), ErrEmptyAddress)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestPostgresStore_Contract(t *testing.T) {
	runStoreContract(t, NewPostgresStore(storagetest.Open(t)))
}

func TestMemoryStore_ListEmpty(t *testing.T) {
	entries, err := NewMemoryStore().List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestEntryActiveAt(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	require.True(t, Entry{Address: "a"}.ActiveAt(now))
	require.True(t, Entry{Address: "a", ExpiresAt: &future}.ActiveAt(now))
	require.False(t, Entry{Address: "a", ExpiresAt: &past}.ActiveAt(now))
	require.False(t, Entry{Address: "a", ExpiresAt: &now}.ActiveAt(now))
}
