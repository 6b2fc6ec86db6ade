package ban

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BanPrefix is the Redis key prefix for ban records. Records are stored as
//
//	Key:   ban:<address>
//	Value: {"reason": ..., "expires_at": ...}
//	TTL:   until expires_at, when it lies in the future
const BanPrefix = "ban:"

// RedisStore keeps the ban table in Redis. Expiring entries also carry a key
// TTL so Redis drops them once they can no longer refuse anyone.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a ban store using the provided Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *RedisStore) Lookup(ctx context.Context, address string) (*Entry, error) {
	raw, err := s.client.Get(ctx, BanPrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ban: redis get: %w", err)
	}
	return decodeRecord(address, raw)
}

func (s *RedisStore) Upsert(ctx context.Context, entry Entry) error {
	if entry.Address == "" {
		return ErrEmptyAddress
	}

	rec := redisRecord{Reason: entry.Reason}
	var ttl time.Duration
	if entry.ExpiresAt != nil {
		t := entry.ExpiresAt.UTC()
		rec.ExpiresAt = &t
		// An entry that is already expired is kept without TTL, like a row
		// in the Postgres table; the Gate ignores it either way.
		if d := time.Until(t); d > 0 {
			ttl = d
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ban: redis marshal: %w", err)
	}
	if err := s.client.Set(ctx, BanPrefix+entry.Address, data, ttl).Err(); err != nil {
		return fmt.Errorf("ban: redis set: %w", err)
	}
	return nil
}

// Delete removes a ban immediately.
func (s *RedisStore) Delete(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, BanPrefix+address).Err(); err != nil {
		return fmt.Errorf("ban: redis del: %w", err)
	}
	return nil
}

// List scans every ban: key. Keys that expire between the scan and the read
// are skipped.
func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, BanPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ban: redis scan: %w", err)
	}

	entries := []Entry{}
	if len(keys) == 0 {
		return entries, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ban: redis list: %w", err)
	}

	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ban: redis list get: %w", err)
		}
		e, err := decodeRecord(strings.TrimPrefix(keys[i], BanPrefix), raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries, nil
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func decodeRecord(address string, raw []byte) (*Entry, error) {
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("ban: redis decode %s: %w", address, err)
	}
	return &Entry{Address: address, Reason: rec.Reason, ExpiresAt: rec.ExpiresAt}, nil
}
