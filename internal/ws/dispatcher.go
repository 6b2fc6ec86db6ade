package ws

import (
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/metrics"
	"github.com/stargaze/chat-gateway/internal/protocol"
)

// MessageHandler handles one decoded client event. It runs on the worker that
// read the frame, so events from a single connection are handled one at a
// time and in order.
type MessageHandler func(conn *Connection, msg protocol.Inbound)

// MessageDispatcher routes decoded frames to registered handlers by type.
// Malformed frames and frames of an unhandled type are logged and dropped;
// the client gets no reply and the connection stays open.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   *zap.Logger
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher(logger *zap.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger.Named("dispatch"),
	}
}

// Register associates a handler with a message type, replacing any previous
// one. It must be called before the server starts.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's onMessage callback.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	metrics.MessagesTotal.WithLabelValues("received").Inc()

	in := protocol.ParseClientMessage(data)
	switch in.Kind {
	case protocol.KindMalformed:
		metrics.MessagesTotal.WithLabelValues("malformed").Inc()
		d.logger.Debug("dropping malformed frame",
			zap.String("conn", conn.ID), zap.Int("bytes", len(data)), zap.Error(in.Err))
		return
	case protocol.KindIgnored:
		metrics.MessagesTotal.WithLabelValues("ignored").Inc()
		d.logger.Debug("ignoring frame", zap.String("conn", conn.ID), zap.String("type", in.Type))
		return
	}

	handler, ok := d.handlers[in.Type]
	if !ok {
		metrics.MessagesTotal.WithLabelValues("ignored").Inc()
		d.logger.Debug("no handler for type", zap.String("conn", conn.ID), zap.String("type", in.Type))
		return
	}
	handler(conn, in)
}
