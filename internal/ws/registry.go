package ws

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stargaze/chat-gateway/internal/metrics"
)

// RegistryConfig tunes broadcast fan-out.
type RegistryConfig struct {
	WriteTimeout time.Duration // bound on each per-recipient write
	Concurrency  int           // max parallel writes during one broadcast
}

// DefaultRegistryConfig returns the defaults used when nothing is configured.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		WriteTimeout: 5 * time.Second,
		Concurrency:  64,
	}
}

// Registry is the thread-safe set of admitted connections. It maps
// connection IDs and file descriptors to their Connection objects and
// delivers broadcast payloads to a point-in-time snapshot of the set.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Connection // connection id -> Connection
	byFd map[int]*Connection    // fd -> Connection, only for fd >= 0

	config    RegistryConfig
	onFailure func(*Connection)
	logger    *zap.Logger
}

// NewRegistry creates an empty Registry. Connections whose broadcast write
// fails are unregistered unless SetFailureHandler installs something else.
func NewRegistry(config RegistryConfig, logger *zap.Logger) *Registry {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultRegistryConfig().Concurrency
	}
	r := &Registry{
		byID:   make(map[string]*Connection),
		byFd:   make(map[int]*Connection),
		config: config,
		logger: logger.Named("registry"),
	}
	r.onFailure = func(c *Connection) { r.Unregister(c) }
	return r
}

// SetFailureHandler replaces the action taken for a connection whose
// broadcast write failed. The handler must eventually unregister it.
func (r *Registry) SetFailureHandler(fn func(*Connection)) {
	r.onFailure = fn
}

// Register adds an admitted connection. It is called exactly once per
// connection, right after admission.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	r.byID[c.ID] = c
	if c.Fd >= 0 {
		r.byFd[c.Fd] = c
	}
	n := len(r.byID)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(n))
}

// Unregister removes c and closes its socket. It returns false, and does
// nothing, when c is not registered.
func (r *Registry) Unregister(c *Connection) bool {
	r.mu.Lock()
	cur, ok := r.byID[c.ID]
	ok = ok && cur == c
	if ok {
		delete(r.byID, c.ID)
		if c.Fd >= 0 && r.byFd[c.Fd] == c {
			delete(r.byFd, c.Fd)
		}
	}
	n := len(r.byID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = c.Close()
	metrics.ConnectionsActive.Set(float64(n))
	return true
}

// Get returns the connection with the given id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	c := r.byID[id]
	r.mu.RUnlock()
	return c
}

// GetByFd returns the connection for the given file descriptor, or nil.
func (r *Registry) GetByFd(fd int) *Connection {
	r.mu.RLock()
	c := r.byFd[fd]
	r.mu.RUnlock()
	return c
}

// GetByConn returns the connection owning the given net.Conn, or nil.
func (r *Registry) GetByConn(nc net.Conn) *Connection {
	if fd := socketFD(nc); fd >= 0 {
		return r.GetByFd(fd)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.Conn == nc {
			return c
		}
	}
	return nil
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

// CountByAddress returns how many registered connections came from address.
func (r *Registry) CountByAddress(address string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.byID {
		if c.Address == address {
			n++
		}
	}
	return n
}

// All returns a snapshot of the registered connections. The slice is safe to
// iterate without holding the lock.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}

// Broadcast writes payload to every connection registered when the call
// starts. Connections registered or unregistered while it runs are not
// observed. Writes run in parallel, each bounded by the write timeout, and a
// failing recipient never stops delivery to the others; failed recipients are
// handed to the failure handler once the fan-out is done. Broadcast returns
// the number of successful deliveries.
func (r *Registry) Broadcast(payload []byte) int {
	start := time.Now()
	conns := r.All()

	var (
		mu        sync.Mutex
		delivered int
		failed    []*Connection
	)

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for _, c := range conns {
		g.Go(func() error {
			if err := c.WriteMessage(payload, r.config.WriteTimeout); err != nil {
				r.logger.Debug("delivery failed", zap.String("conn", c.ID), zap.String("address", c.Address), zap.Error(err))
				mu.Lock()
				failed = append(failed, c)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.DeliveriesTotal.WithLabelValues("ok").Add(float64(delivered))
	metrics.DeliveriesTotal.WithLabelValues("failed").Add(float64(len(failed)))
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())

	for _, c := range failed {
		r.logger.Info("dropping connection after failed delivery", zap.String("conn", c.ID), zap.String("address", c.Address))
		r.onFailure(c)
	}
	return delivered
}
