package ban

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/metrics"
)

// Gate answers whether an address may open a connection. It is consulted
// once per connection, before registration; bans written afterwards do not
// affect connections that are already open.
type Gate struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewGate creates a Gate reading from store. Each lookup is bounded by
// timeout when it is positive.
func NewGate(store Store, timeout time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		store:   store,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.Named("ban"),
	}
}

// IsBanned reports whether address has an entry that is unexpired at call
// time. A failing lookup fails open: it is logged and the address is let in,
// so a storage outage does not lock every client out.
func (g *Gate) IsBanned(ctx context.Context, address string) bool {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	entry, err := g.store.Lookup(ctx, address)
	if err != nil {
		metrics.BanLookupErrors.Inc()
		g.logger.Warn("ban lookup failed, admitting", zap.String("address", address), zap.Error(err))
		return false
	}
	if entry == nil {
		return false
	}
	return entry.ActiveAt(g.now())
}

// Admit returns ErrBanned when address is currently banned.
func (g *Gate) Admit(ctx context.Context, address string) error {
	if g.IsBanned(ctx, address) {
		return ErrBanned
	}
	return nil
}
