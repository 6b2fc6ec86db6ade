package ws

import (
	"context"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type admitAll struct{}

func (admitAll) Admit(context.Context, string) error { return nil }

func newHeartbeatServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(DefaultServerConfig(), newTestRegistry(time.Second), admitAll{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func TestHeartbeat_PingsLiveConnections(t *testing.T) {
	req := require.New(t)
	srv := newHeartbeatServer(t)
	cfg := HeartbeatConfig{Interval: 30 * time.Second, Timeout: time.Second}

	server, client := newTCPPair(t)
	c := NewConnection("live", "1.2.3.4", server)
	srv.registry.Register(c)

	frames := make(chan ws.Frame, 1)
	go func() {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		if f, err := ws.ReadFrame(client); err == nil {
			frames <- f
		}
		close(frames)
	}()

	checkConnections(srv, cfg, time.Now())

	f, ok := <-frames
	req.True(ok)
	req.Equal(ws.OpPing, f.Header.OpCode)
	req.Equal(1, srv.registry.Count())
}

func TestHeartbeat_EvictsSilentConnections(t *testing.T) {
	req := require.New(t)
	srv := newHeartbeatServer(t)
	cfg := HeartbeatConfig{Interval: 30 * time.Second, Timeout: 10 * time.Second}

	c, _ := newPipeConn(t, "stale", "1.2.3.4")
	srv.registry.Register(c)

	// Given the connection has been silent for longer than interval + timeout
	checkConnections(srv, cfg, c.LastSeen().Add(time.Minute))

	// Then it is gone and closed
	req.Zero(srv.registry.Count())
	req.True(c.Closed())
}
