package ws

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
)

// ErrConnectionClosed is returned by writes on a connection that has already
// been closed.
var ErrConnectionClosed = errors.New("ws: connection closed")

// Connection represents a single admitted WebSocket client together with the
// address it was admitted from and a write mutex that serializes outbound
// frames.
type Connection struct {
	ID        string    // opaque handle (UUID)
	Address   string    // client network address used by the ban check
	Conn      net.Conn  // underlying TCP connection
	Fd        int       // file descriptor for epoll lookups, -1 if none
	CreatedAt time.Time // when the connection was admitted

	lastSeen   atomic.Int64 // unix nanos of the last frame read from the client
	writeMu    sync.Mutex   // serializes writes to this connection
	closed     atomic.Bool
	processing int32 // atomic flag: 0 = idle, 1 = being read by handleConn
}

// NewConnection wraps an upgraded net.Conn.
func NewConnection(id, address string, conn net.Conn) *Connection {
	now := time.Now()
	c := &Connection{
		ID:        id,
		Address:   address,
		Conn:      conn,
		Fd:        socketFD(conn),
		CreatedAt: now,
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Touch records inbound activity.
func (c *Connection) Touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

// LastSeen returns the time of the most recent inbound frame.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// WriteMessage sends a WebSocket text frame. A positive timeout bounds the
// write; the deadline is cleared afterwards so it does not leak into later
// writes such as heartbeat pings.
func (c *Connection) WriteMessage(data []byte, timeout time.Duration) error {
	return c.writeFrame(ws.NewTextFrame(data), timeout)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing(timeout time.Duration) error {
	return c.writeFrame(ws.NewPingFrame(nil), timeout)
}

// WritePong answers a client ping with the same payload.
func (c *Connection) WritePong(payload []byte, timeout time.Duration) error {
	return c.writeFrame(ws.NewPongFrame(payload), timeout)
}

func (c *Connection) writeFrame(f ws.Frame, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return ws.WriteFrame(c.Conn, f)
}

// Close closes the underlying network connection. Only the first call has an
// effect. The closed flag is set before the socket is closed, so a writer that
// takes the write mutex afterwards fails with ErrConnectionClosed and a write
// already in progress fails on the closed socket.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Conn.Close()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}
