// Package config loads gateway settings from the process environment. A .env
// file in the working directory, when present, is applied first and never
// overrides variables that are already set.
package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORE_BACKEND and BAN_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds every tunable of the gateway and the moderator process.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:3000"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=json"` // json | console

	WorkerPoolSize       int           `env:"WORKER_POOL_SIZE,default=256"`
	MaxConnections       int           `env:"MAX_CONNECTIONS,default=100000"`
	ReadTimeout          time.Duration `env:"READ_TIMEOUT,default=10s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=1048576"`
	BroadcastConcurrency int           `env:"BROADCAST_CONCURRENCY,default=64"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	HeartbeatTimeout     time.Duration `env:"HEARTBEAT_TIMEOUT,default=10s"`
	TrustForwardedFor    bool          `env:"TRUST_FORWARDED_FOR,default=false"`

	StoreBackend string        `env:"STORE_BACKEND,default=postgres"`
	BanBackend   string        `env:"BAN_BACKEND,default=postgres"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=5s"`
	HistoryLimit int           `env:"HISTORY_LIMIT,default=50"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	RedisAddr    string        `env:"REDIS_ADDR,default=localhost:6379"`
	NATSURL      string        `env:"NATS_URL"`

	AdminToken string `env:"ADMIN_TOKEN"`
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// FromEnvSet builds a Config from an explicit variable set.
func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the gateway cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("config: STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}
	switch c.BanBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("config: BAN_BACKEND must be one of postgres, redis, memory, got %q", c.BanBackend)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: MAX_CONNECTIONS must be positive, got %d", c.MaxConnections)
	}
	if c.BroadcastConcurrency <= 0 {
		return fmt.Errorf("config: BROADCAST_CONCURRENCY must be positive, got %d", c.BroadcastConcurrency)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// NeedsDatabase reports whether any configured backend is Postgres.
func (c Config) NeedsDatabase() bool {
	return c.StoreBackend == BackendPostgres || c.BanBackend == BackendPostgres
}
