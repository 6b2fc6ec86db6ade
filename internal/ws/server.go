// Package ws handles the gateway's WebSocket side: upgrading HTTP requests,
// admitting or refusing clients, keeping the registry of live connections and
// reading frames through an epoll-driven worker pool.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/metrics"
	"github.com/stargaze/chat-gateway/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Admitter decides whether a client address may open a connection.
type Admitter interface {
	Admit(ctx context.Context, address string) error
}

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr        string        // address to listen on, e.g. ":3000"
	WorkerPoolSize    int           // max concurrent read-worker goroutines
	MaxConnections    int           // hard cap on total connections
	ReadTimeout       time.Duration // timeout for reading one frame once epoll reports data
	WriteTimeout      time.Duration // timeout for the rejection notice
	MaxFrameBytes     int64         // larger inbound messages close the connection
	TrustForwardedFor bool          // take the client address from proxy headers
	Heartbeat         HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":3000",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxFrameBytes:  1 << 20,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// upgrades HTTP connections, consults the Admitter once per connection,
// registers admitted connections and hands ready sockets to a bounded worker
// pool that reads one frame at a time.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	registry   *Registry
	gate       Admitter
	workerPool chan struct{}                       // semaphore limiting concurrent read workers
	onMessage  func(conn *Connection, data []byte) // message handler callback
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	startedAt time.Time
}

// NewServer creates a Server. onMessage is called from a worker goroutine for
// every complete text or binary message; calls for one connection never
// overlap.
func NewServer(config ServerConfig, registry *Registry, gate Admitter, onMessage func(conn *Connection, data []byte), logger *zap.Logger) (*Server, error) {
	epoll, err := NewEpoll()
	if err != nil {
		return nil, fmt.Errorf("ws: failed to create epoll: %w", err)
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = DefaultServerConfig().WorkerPoolSize
	}

	s := &Server{
		config:     config,
		epoll:      epoll,
		registry:   registry,
		gate:       gate,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		logger:     logger.Named("ws"),
		done:       make(chan struct{}),
	}
	registry.SetFailureHandler(s.RemoveConnection)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if config.TrustForwardedFor {
		r.Use(middleware.RealIP)
	}
	r.Get("/ws", s.handleUpgrade)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	s.router = r
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Mount attaches an additional HTTP handler, such as the history or admin
// API, under pattern. It must be called before Start or Serve. The pattern
// must not collide with /ws, /health or /metrics.
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.router.Mount(pattern, handler)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("ws: listen %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve starts the epoll event loop and the heartbeat monitor and serves HTTP
// on ln. It blocks until the listener fails or Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.startedAt = time.Now()

	go s.startEventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	s.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("workers", s.config.WorkerPoolSize),
		zap.Int("max_conns", s.config.MaxConnections))

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade admits or refuses a client. The ban check runs before the
// upgrade; a refused client is still upgraded so it can receive the error
// frame, and is then closed without ever being registered.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.registry.Count() >= s.config.MaxConnections {
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	address := clientAddress(r)
	admitErr := s.gate.Admit(r.Context(), address)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		metrics.AdmissionsTotal.WithLabelValues("rejected").Inc()
		s.logger.Debug("upgrade failed", zap.String("address", address), zap.Error(err))
		return
	}

	if admitErr != nil {
		metrics.AdmissionsTotal.WithLabelValues("banned").Inc()
		s.logger.Info("refused connection", zap.String("address", address), zap.Error(admitErr))
		s.refuse(conn)
		return
	}

	c := NewConnection(uuid.NewString(), address, conn)
	s.registry.Register(c)
	if err := s.epoll.Add(conn); err != nil {
		s.logger.Error("epoll add failed", zap.String("conn", c.ID), zap.Error(err))
		s.registry.Unregister(c)
		return
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	s.logger.Info("connection admitted",
		zap.String("conn", c.ID),
		zap.String("address", address),
		zap.Int("fd", c.Fd),
		zap.Int("total", s.registry.Count()))
}

// refuse sends the single error notice followed by a close frame and closes
// the socket.
func (s *Server) refuse(conn net.Conn) {
	defer conn.Close()

	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{Message: protocol.BannedNotice})
	if err != nil {
		s.logger.Error("failed to build error notice", zap.Error(err))
		return
	}
	if err := wsutil.WriteServerMessage(conn, ws.OpText, data); err != nil {
		s.logger.Debug("failed to send error notice", zap.Error(err))
		return
	}
	body := ws.NewCloseFrameBody(ws.StatusPolicyViolation, "banned")
	_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
}

// clientAddress returns the host part of the request's remote address. When
// proxy headers are trusted, middleware.RealIP has already rewritten
// RemoteAddr to the forwarded client address, usually without a port.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleHealth reports status, connection count and uptime as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.registry.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the epoll wait loop. Each ready connection is handed
// to a worker goroutine bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isEINTR(err) {
				continue
			}
			s.logger.Error("epoll wait error", zap.Error(err))
			continue
		}

		for _, conn := range conns {
			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads one WebSocket message from a ready connection. The
// processing flag keeps a second epoll notification from starting a parallel
// read, so messages from one client are handled strictly in order. Any read
// error other than a timeout removes the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.registry.GetByConn(netConn)
	if c == nil {
		return
	}

	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	// The flag must be clear before Resume: once resumed, the poller may
	// report the connection again right away.
	defer func() {
		atomic.StoreInt32(&c.processing, 0)
		s.epoll.Resume(netConn)
	}()

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(s.epoll.Reader(netConn), ws.StateServerSide)
	if err != nil {
		// A timeout here is a stale readiness event; the heartbeat takes care
		// of connections that are really dead.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	c.Touch(time.Now())

	if header.OpCode.IsControl() {
		payload, err := io.ReadAll(reader)
		if err != nil || header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
			return
		}
		_ = netConn.SetReadDeadline(time.Time{})
		if header.OpCode == ws.OpPing {
			if err := c.WritePong(payload, s.config.WriteTimeout); err != nil {
				s.RemoveConnection(c)
			}
		}
		return
	}

	if s.config.MaxFrameBytes > 0 && header.Length > s.config.MaxFrameBytes {
		s.logger.Info("frame too large", zap.String("conn", c.ID), zap.Int64("bytes", header.Length))
		s.RemoveConnection(c)
		return
	}

	var src io.Reader = reader
	if s.config.MaxFrameBytes > 0 {
		src = io.LimitReader(reader, s.config.MaxFrameBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})

	if s.config.MaxFrameBytes > 0 && int64(len(data)) > s.config.MaxFrameBytes {
		s.logger.Info("message too large", zap.String("conn", c.ID), zap.Int("bytes", len(data)))
		s.RemoveConnection(c)
		return
	}
	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection takes a connection out of epoll and the registry and
// closes it. Concurrent calls for the same connection are safe; only the
// first one logs.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	if !s.registry.Unregister(c) {
		return
	}
	s.logger.Info("connection closed",
		zap.String("conn", c.ID),
		zap.String("address", c.Address),
		zap.Int("total", s.registry.Count()))
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Shutdown stops the HTTP listener, ends the event loop, closes every
// registered connection and releases the epoll instance.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		if herr := s.httpServer.Shutdown(ctx); herr != nil {
			err = fmt.Errorf("ws: http shutdown: %w", herr)
		}

		for _, c := range s.registry.All() {
			s.RemoveConnection(c)
		}
		_ = s.epoll.Close()
	})

	s.logger.Info("server stopped")
	return err
}
