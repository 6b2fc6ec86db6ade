package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/ban"
	"github.com/stargaze/chat-gateway/internal/chat"
	"github.com/stargaze/chat-gateway/internal/config"
)

func TestOpen_MemoryBackends(t *testing.T) {
	req := require.New(t)
	cfg := config.Config{
		StoreBackend: config.BackendMemory,
		BanBackend:   config.BackendMemory,
	}

	r, err := Open(context.Background(), cfg, "test", zap.NewNop())
	req.NoError(err)
	defer r.Close()

	req.Nil(r.DB)
	req.Nil(r.Redis)
	req.Nil(r.NATS)
	req.IsType(&chat.MemoryStore{}, r.MessageStore())
	req.IsType(&ban.MemoryStore{}, r.BanStore())
}

func TestOpen_UnreachableRedisFails(t *testing.T) {
	cfg := config.Config{
		StoreBackend: config.BackendMemory,
		BanBackend:   config.BackendRedis,
		RedisAddr:    "127.0.0.1:1",
	}

	_, err := Open(context.Background(), cfg, "test", zap.NewNop())
	require.Error(t, err)
}
