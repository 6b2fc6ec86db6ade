package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/app"
	"github.com/stargaze/chat-gateway/internal/ban"
	"github.com/stargaze/chat-gateway/internal/config"
	"github.com/stargaze/chat-gateway/internal/gateway"
	"github.com/stargaze/chat-gateway/internal/logging"
	"github.com/stargaze/chat-gateway/internal/messaging"
	"github.com/stargaze/chat-gateway/internal/moderation"
	"github.com/stargaze/chat-gateway/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := app.Open(ctx, cfg, "chat-gateway", logger)
	if err != nil {
		logger.Fatal("failed to open resources", zap.Error(err))
	}
	defer res.Close()

	messages := res.MessageStore()
	bans := res.BanStore()

	registry := ws.NewRegistry(ws.RegistryConfig{
		WriteTimeout: cfg.WriteTimeout,
		Concurrency:  cfg.BroadcastConcurrency,
	}, logger)

	dispatcher := ws.NewMessageDispatcher(logger)
	gateway.NewHandler(messages, registry, cfg.StoreTimeout, logger).Register(dispatcher)

	serverConfig := ws.ServerConfig{
		ListenAddr:        cfg.ListenAddr,
		WorkerPoolSize:    cfg.WorkerPoolSize,
		MaxConnections:    cfg.MaxConnections,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		MaxFrameBytes:     cfg.MaxFrameBytes,
		TrustForwardedFor: cfg.TrustForwardedFor,
		Heartbeat: ws.HeartbeatConfig{
			Interval: cfg.HeartbeatInterval,
			Timeout:  cfg.HeartbeatTimeout,
		},
	}

	server, err := ws.NewServer(serverConfig, registry, ban.NewGate(bans, cfg.StoreTimeout, logger), dispatcher.Dispatch, logger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	var notifiers []moderation.Notifier
	if res.NATS != nil {
		notifiers = append(notifiers, messaging.NewBanPublisher(res.NATS))

		// Bans only gate new connections; sessions already open stay up.
		err := res.NATS.SubscribeBanEvents(func(ev moderation.Event) {
			logger.Info("ban event",
				zap.String("action", ev.Action),
				zap.String("address", ev.Address),
				zap.Int("open_sessions", registry.CountByAddress(ev.Address)))
		})
		if err != nil {
			logger.Fatal("failed to subscribe to ban events", zap.Error(err))
		}
	}

	moderator := moderation.NewService(bans, logger, notifiers...)
	server.Mount("/api/messages", gateway.NewHistoryAPI(messages, cfg.HistoryLimit, cfg.StoreTimeout, logger).Routes())
	server.Mount("/api/admin", moderation.NewAdminAPI(moderator, cfg.AdminToken, logger).Routes())

	logger.Info("chat gateway starting",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("ban_backend", cfg.BanBackend),
		zap.Int("worker_pool", cfg.WorkerPoolSize),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Bool("nats", res.NATS != nil))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
