package ban

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore creates a RedisStore connected to a local Redis instance
// and flushes all test ban keys before returning. Tests that call this helper
// require a running Redis on localhost:6379.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	flush := func() {
		iter := client.Scan(ctx, 0, BanPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	flush()
	t.Cleanup(func() {
		flush()
		client.Close()
	})
	return NewRedisStore(client)
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, newTestRedisStore(t))
}

func TestRedisStore_ExpiringBanHasTTL(t *testing.T) {
	req := require.New(t)
	store := newTestRedisStore(t)
	ctx := context.Background()

	expires := time.Now().Add(30 * time.Second)
	req.NoError(store.Upsert(ctx, Entry{Address: "10.0.0.1", Reason: "spam", ExpiresAt: &expires}))

	ttl, err := store.Client().TTL(ctx, BanPrefix+"10.0.0.1").Result()
	req.NoError(err)
	req.Greater(ttl, 20*time.Second)
	req.LessOrEqual(ttl, 30*time.Second)
}

func TestRedisStore_PermanentBanHasNoTTL(t *testing.T) {
	req := require.New(t)
	store := newTestRedisStore(t)
	ctx := context.Background()

	req.NoError(store.Upsert(ctx, Entry{Address: "10.0.0.2", Reason: "spam"}))

	ttl, err := store.Client().TTL(ctx, BanPrefix+"10.0.0.2").Result()
	req.NoError(err)
	// -1 means the key exists without an expiry.
	req.Equal(time.Duration(-1), ttl)
}

func TestRedisStore_UpsertReplacesTTL(t *testing.T) {
	req := require.New(t)
	store := newTestRedisStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Minute)
	req.NoError(store.Upsert(ctx, Entry{Address: "10.0.0.3", Reason: "first", ExpiresAt: &expires}))
	req.NoError(store.Upsert(ctx, Entry{Address: "10.0.0.3", Reason: "second"}))

	e, err := store.Lookup(ctx, "10.0.0.3")
	req.NoError(err)
	req.Equal("second", e.Reason)
	req.Nil(e.ExpiresAt)

	ttl, err := store.Client().TTL(ctx, BanPrefix+"10.0.0.3").Result()
	req.NoError(err)
	req.Equal(time.Duration(-1), ttl)
}
