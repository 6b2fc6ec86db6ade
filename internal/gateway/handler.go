// Package gateway wires chat semantics onto the WebSocket server: it persists
// each inbound chat event and then broadcasts the stored record, and serves
// the message history over HTTP.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/chat"
	"github.com/stargaze/chat-gateway/internal/metrics"
	"github.com/stargaze/chat-gateway/internal/protocol"
	"github.com/stargaze/chat-gateway/internal/ws"
)

// Broadcaster delivers one payload to every open connection.
type Broadcaster interface {
	Broadcast(payload []byte) int
}

// Handler runs the persist-then-broadcast sequence for chat events.
type Handler struct {
	store   chat.Store
	hub     Broadcaster
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a Handler. A positive timeout bounds each store call.
func NewHandler(store chat.Store, hub Broadcaster, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		hub:     hub,
		timeout: timeout,
		logger:  logger.Named("gateway"),
	}
}

// Register installs the chat handler on d.
func (h *Handler) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeChat, h.HandleChat)
}

// HandleChat persists msg and, only if that succeeded, broadcasts the stored
// record to every connection including the sender. It returns once the
// broadcast is done, so the next event from the same connection is not read
// before this one has been delivered.
func (h *Handler) HandleChat(conn *ws.Connection, msg protocol.Inbound) {
	rec, err := h.persist(msg.Chat.Username, msg.Chat.Text)
	if chat.IsInvalid(err) {
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		h.logger.Debug("dropping invalid message",
			zap.String("conn", conn.ID),
			zap.String("address", conn.Address),
			zap.Error(err))
		return
	}
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("storage_error").Inc()
		h.logger.Error("append failed, dropping message",
			zap.String("conn", conn.ID),
			zap.String("address", conn.Address),
			zap.Error(err))
		return
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	payload, err := protocol.NewServerMessage(protocol.TypeChat, protocol.ServerChatMsg{
		ID:        rec.ID,
		Username:  rec.Username,
		Text:      rec.Text,
		Timestamp: rec.CreatedAt,
	})
	if err != nil {
		h.logger.Error("failed to encode chat message", zap.Int64("id", rec.ID), zap.Error(err))
		return
	}

	n := h.hub.Broadcast(payload)
	h.logger.Debug("message broadcast",
		zap.Int64("id", rec.ID),
		zap.String("conn", conn.ID),
		zap.Int("recipients", n))
}

func (h *Handler) persist(username, text string) (chat.Message, error) {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	rec, err := h.store.Append(ctx, username, text)
	metrics.StoreAppendDuration.Observe(time.Since(start).Seconds())
	return rec, err
}
