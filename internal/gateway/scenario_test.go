package gateway_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/ban"
	"github.com/stargaze/chat-gateway/internal/chat"
	"github.com/stargaze/chat-gateway/internal/gateway"
	"github.com/stargaze/chat-gateway/internal/moderation"
	"github.com/stargaze/chat-gateway/internal/protocol"
	gws "github.com/stargaze/chat-gateway/internal/ws"
)

type stack struct {
	srv      *gws.Server
	messages *chat.MemoryStore
	addr     string
}

// startStack wires the full gateway on a loopback port with in-memory
// stores, the way cmd/gateway does with real ones.
func startStack(t *testing.T) *stack {
	t.Helper()
	req := require.New(t)
	logger := zap.NewNop()

	messages := chat.NewMemoryStore(0)
	bans := ban.NewMemoryStore()

	reg := gws.NewRegistry(gws.RegistryConfig{WriteTimeout: time.Second, Concurrency: 8}, logger)
	dispatcher := gws.NewMessageDispatcher(logger)
	gateway.NewHandler(messages, reg, time.Second, logger).Register(dispatcher)

	cfg := gws.DefaultServerConfig()
	cfg.TrustForwardedFor = true
	cfg.ReadTimeout = time.Second
	cfg.Heartbeat = gws.HeartbeatConfig{}

	srv, err := gws.NewServer(cfg, reg, ban.NewGate(bans, time.Second, logger), dispatcher.Dispatch, logger)
	req.NoError(err)
	srv.Mount("/api/messages", gateway.NewHistoryAPI(messages, 50, time.Second, logger).Routes())
	srv.Mount("/api/admin", moderation.NewAdminAPI(moderation.NewService(bans, logger), "", logger).Routes())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	go func() { _ = srv.Serve(ln) }()

	st := &stack{srv: srv, messages: messages, addr: ln.Addr().String()}
	req.Eventually(func() bool {
		resp, err := http.Get("http://" + st.addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return st
}

type peer struct {
	conn net.Conn
	rw   io.ReadWriter
}

func (st *stack) connect(t *testing.T, address string) *peer {
	t.Helper()
	d := ws.Dialer{Header: ws.HandshakeHeaderHTTP(http.Header{"X-Forwarded-For": []string{address}})}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, br, _, err := d.Dial(ctx, "ws://"+st.addr+"/ws")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &peer{conn: conn, rw: struct {
		io.Reader
		io.Writer
	}{r, conn}}
}

func (p *peer) send(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, wsutil.WriteClientText(p.conn, []byte(frame)))
}

func (p *peer) read() ([]byte, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, _, err := wsutil.ReadServerData(p.rw)
	return data, err
}

func (p *peer) next(t *testing.T) []byte {
	t.Helper()
	data, err := p.read()
	require.NoError(t, err)
	return data
}

func (st *stack) waitForCount(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return st.srv.Registry().Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func postJSON(t *testing.T, url, body string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScenario_BanThenChat(t *testing.T) {
	req := require.New(t)
	st := startStack(t)

	// Given client X from 1.2.3.4 is admitted
	x := st.connect(t, "1.2.3.4")
	st.waitForCount(t, 1)

	// And the admin bans 5.6.7.8
	postJSON(t, "http://"+st.addr+"/api/admin/ban", `{"ip":"5.6.7.8","reason":"spam"}`)

	// When client Y connects from 5.6.7.8
	y := st.connect(t, "5.6.7.8")

	// Then Y receives the error notice and is never registered
	var notice protocol.ErrorMsg
	req.NoError(jsoniter.Unmarshal(y.next(t), &notice))
	req.Equal(protocol.TypeError, notice.Type)
	req.NotEmpty(notice.Message)
	req.Equal(1, st.srv.Registry().Count())

	// When X sends a chat message
	x.send(t, `{"type":"chat","username":"alice","text":"hi"}`)

	// Then X receives it back with id 1
	var got protocol.ServerChatMsg
	req.NoError(jsoniter.Unmarshal(x.next(t), &got))
	req.Equal(protocol.TypeChat, got.Type)
	req.Equal(int64(1), got.ID)
	req.Equal("alice", got.Username)
	req.Equal("hi", got.Text)
	req.False(got.Timestamp.IsZero())

	// And the log holds exactly that record
	recent, err := st.messages.Recent(context.Background(), 50)
	req.NoError(err)
	req.Len(recent, 1)
	req.Equal(int64(1), recent[0].ID)

	// And the history endpoint agrees
	resp, err := http.Get("http://" + st.addr + "/api/messages")
	req.NoError(err)
	defer resp.Body.Close()
	var history []chat.Message
	req.NoError(jsoniter.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 1)
	req.Equal("hi", history[0].Text)
}

func TestScenario_FanOutCarriesIdenticalRecord(t *testing.T) {
	req := require.New(t)
	st := startStack(t)

	const n = 4
	peers := make([]*peer, n)
	for i := range peers {
		peers[i] = st.connect(t, "10.0.0."+strconv.Itoa(i+1))
	}
	st.waitForCount(t, n)

	peers[2].send(t, `{"type":"chat","username":"carol","text":"hello all"}`)

	var (
		mu   sync.Mutex
		seen []protocol.ServerChatMsg
		wg   sync.WaitGroup
	)
	for _, p := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := p.read()
			if err != nil {
				return
			}
			var m protocol.ServerChatMsg
			if err := jsoniter.Unmarshal(data, &m); err == nil {
				mu.Lock()
				seen = append(seen, m)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	req.Len(seen, n)
	for _, m := range seen[1:] {
		req.Equal(seen[0].ID, m.ID)
		req.True(seen[0].Timestamp.Equal(m.Timestamp))
		req.Equal("hello all", m.Text)
	}
}

func TestScenario_MalformedInputKeepsConnectionOpen(t *testing.T) {
	req := require.New(t)
	st := startStack(t)

	x := st.connect(t, "1.2.3.4")
	st.waitForCount(t, 1)

	x.send(t, `not json`)
	x.send(t, `{"type":"typing","username":"alice"}`)
	x.send(t, `{"type":"chat","username":"","text":"hi"}`)
	x.send(t, `{"type":"chat","username":"alice","text":"real"}`)

	var got protocol.ServerChatMsg
	req.NoError(jsoniter.Unmarshal(x.next(t), &got))
	req.Equal("real", got.Text)
	req.Equal(int64(1), got.ID)
	req.Equal(1, st.srv.Registry().Count())
}

func TestScenario_UnbanReadmits(t *testing.T) {
	req := require.New(t)
	st := startStack(t)

	postJSON(t, "http://"+st.addr+"/api/admin/ban", `{"ip":"5.6.7.8","reason":"spam"}`)

	r, err := http.NewRequest(http.MethodDelete, "http://"+st.addr+"/api/admin/unban/5.6.7.8", nil)
	req.NoError(err)
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	st.connect(t, "5.6.7.8")
	st.waitForCount(t, 1)
}
