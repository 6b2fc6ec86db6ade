// Package app opens the external resources named by the configuration and
// builds the stores both binaries share.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/ban"
	"github.com/stargaze/chat-gateway/internal/chat"
	"github.com/stargaze/chat-gateway/internal/config"
	"github.com/stargaze/chat-gateway/internal/messaging"
	"github.com/stargaze/chat-gateway/internal/storage"
)

// Resources holds the connections a process needs. Fields for backends that
// are not configured stay nil.
type Resources struct {
	DB    *sql.DB
	Redis *redis.Client
	NATS  *messaging.NATSClient

	cfg    config.Config
	logger *zap.Logger
}

// Open connects to Postgres (running migrations), Redis and NATS as far as
// cfg asks for them. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg config.Config, natsName string, logger *zap.Logger) (*Resources, error) {
	r := &Resources{cfg: cfg, logger: logger}

	if cfg.NeedsDatabase() {
		if err := storage.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		db, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, storage.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		r.DB = db
		logger.Info("postgres ready")
	}

	if cfg.BanBackend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			rdb.Close()
			r.Close()
			return nil, fmt.Errorf("app: redis %s: %w", cfg.RedisAddr, err)
		}
		r.Redis = rdb
		logger.Info("redis ready", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = natsName
		nc, err := messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.NATS = nc
	}

	return r, nil
}

// MessageStore returns the configured message log.
func (r *Resources) MessageStore() chat.Store {
	if r.cfg.StoreBackend == config.BackendPostgres {
		return chat.NewPostgresStore(r.DB)
	}
	r.logger.Warn("using in-memory message store, history is lost on restart")
	return chat.NewMemoryStore(chat.DefaultMemoryCapacity)
}

// BanStore returns the configured ban table.
func (r *Resources) BanStore() ban.Store {
	switch r.cfg.BanBackend {
	case config.BackendPostgres:
		return ban.NewPostgresStore(r.DB)
	case config.BackendRedis:
		return ban.NewRedisStore(r.Redis)
	default:
		r.logger.Warn("using in-memory ban store, it is not shared with other processes")
		return ban.NewMemoryStore()
	}
}

// Close releases every open connection.
func (r *Resources) Close() {
	if r.NATS != nil {
		r.NATS.Close()
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
}
