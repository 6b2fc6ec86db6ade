// Package messaging provides a NATS client wrapper used to spread ban-table
// changes between the moderator and gateway processes.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/moderation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SubjectBanEvents carries one moderation.Event per committed ban change.
const SubjectBanEvents = "moderation.bans"

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	logger *zap.Logger
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns the connection defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "chat-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS and returns a ready client. It fails if the
// initial connection fails; later disconnects are retried in the background.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	logger = logger.Named("nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn:   nc,
		subs:   make(map[string]*nats.Subscription),
		logger: logger,
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and keeps the
// subscription for Close.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Flush waits until the server has processed everything sent so far.
func (c *NATSClient) Flush(ctx context.Context) error {
	return c.conn.FlushWithContext(ctx)
}

// PublishBanEvent publishes ev on SubjectBanEvents.
func (c *NATSClient) PublishBanEvent(ev moderation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal ban event: %w", err)
	}
	return c.Publish(SubjectBanEvents, data)
}

// SubscribeBanEvents calls handler for every ban event. Undecodable
// messages are logged and skipped.
func (c *NATSClient) SubscribeBanEvents(handler func(ev moderation.Event)) error {
	return c.Subscribe(SubjectBanEvents, func(msg *nats.Msg) {
		var ev moderation.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("dropping undecodable ban event", zap.Error(err))
			return
		}
		handler(ev)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain failed", zap.Error(err))
	}
}

// BanPublisher is a moderation.Notifier that forwards ban changes to NATS.
type BanPublisher struct {
	client *NATSClient
}

// NewBanPublisher creates a BanPublisher on client.
func NewBanPublisher(client *NATSClient) *BanPublisher {
	return &BanPublisher{client: client}
}

// Notify publishes ev.
func (p *BanPublisher) Notify(_ context.Context, ev moderation.Event) error {
	return p.client.PublishBanEvent(ev)
}
