// Package loadtest provides a WebSocket client and a latency collector for
// exercising a running gateway. The client speaks the same gobwas/ws framing
// the server uses.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	jsoniter "github.com/json-iterator/go"

	"github.com/stargaze/chat-gateway/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configure a Client. Handlers are fixed at dial time and run on the
// client's read goroutine, so they should not block.
type Options struct {
	// ForwardedFor is sent as X-Forwarded-For so one host can pose as many
	// addresses against a gateway that trusts the header.
	ForwardedFor string
	OnChat       func(msg protocol.ServerChatMsg)
	OnError      func(msg protocol.ErrorMsg)
}

// Metrics is a snapshot of one client's counters.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesSent     int64
	MessagesReceived int64
	Errors           int64
}

// Client is one simulated chat user.
type Client struct {
	conn net.Conn
	rw   io.ReadWriter
	opts Options

	writeMu sync.Mutex

	connectLatency time.Duration
	sent           atomic.Int64
	received       atomic.Int64
	errors         atomic.Int64

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to url and starts the read loop.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	var d ws.Dialer
	if opts.ForwardedFor != "" {
		d.Header = ws.HandshakeHeaderHTTP(http.Header{"X-Forwarded-For": []string{opts.ForwardedFor}})
	}

	start := time.Now()
	conn, br, _, err := d.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:           conn,
		opts:           opts,
		connectLatency: time.Since(start),
		done:           make(chan struct{}),
	}

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{c}}

	go c.readLoop()
	return c, nil
}

// lockedWriter serializes control-frame replies from the read loop with Send.
type lockedWriter struct{ c *Client }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// SendChat sends one chat event. It is safe for concurrent use.
func (c *Client) SendChat(username, text string) error {
	data, err := json.Marshal(protocol.ChatMsg{Type: protocol.TypeChat, Username: username, Text: text})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		c.errors.Add(1)
		return err
	}
	c.sent.Add(1)
	return nil
}

// Done is closed once the read loop has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. It is safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.conn.Close()
	})
	return err
}

// Metrics returns the client's counters.
func (c *Client) Metrics() Metrics {
	return Metrics{
		ConnectLatency:   c.connectLatency,
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
		Errors:           c.errors.Load(),
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		data, _, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			if !c.closing.Load() {
				c.errors.Add(1)
			}
			return
		}
		c.received.Add(1)

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case protocol.TypeChat:
			var msg protocol.ServerChatMsg
			if err := json.Unmarshal(data, &msg); err == nil && c.opts.OnChat != nil {
				c.opts.OnChat(msg)
			}
		case protocol.TypeError:
			c.errors.Add(1)
			var msg protocol.ErrorMsg
			if err := json.Unmarshal(data, &msg); err == nil && c.opts.OnError != nil {
				c.opts.OnError(msg)
			}
		}
	}
}
