package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/app"
	"github.com/stargaze/chat-gateway/internal/config"
	"github.com/stargaze/chat-gateway/internal/logging"
	"github.com/stargaze/chat-gateway/internal/messaging"
	"github.com/stargaze/chat-gateway/internal/metrics"
	"github.com/stargaze/chat-gateway/internal/moderation"
)

// The moderator serves only the admin API. It shares the ban store with the
// gateways, so it is only useful with the postgres or redis ban backend.
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
	logger = logger.Named("moderator")

	if cfg.BanBackend == config.BackendMemory {
		logger.Warn("memory ban backend is private to this process, gateways will not see its bans")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The moderator never touches the message log.
	cfg.StoreBackend = config.BackendMemory
	res, err := app.Open(ctx, cfg, "chat-moderator", logger)
	if err != nil {
		logger.Fatal("failed to open resources", zap.Error(err))
	}
	defer res.Close()

	var notifiers []moderation.Notifier
	if res.NATS != nil {
		notifiers = append(notifiers, messaging.NewBanPublisher(res.NATS))
	}
	svc := moderation.NewService(res.BanStore(), logger, notifiers...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/api/admin", moderation.NewAdminAPI(svc, cfg.AdminToken, logger).Routes())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	logger.Info("moderation service running",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("ban_backend", cfg.BanBackend),
		zap.Bool("nats", res.NATS != nil))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
