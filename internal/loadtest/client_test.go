package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/stargaze/chat-gateway/internal/protocol"
)

// echoServer upgrades, records the forwarded address, and answers every
// chat frame with a broadcast copy followed by an error frame.
func echoServer(t *testing.T, forwarded chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded <- r.Header.Get("X-Forwarded-For")
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		in := protocol.ParseClientMessage(data)
		if in.Kind != protocol.KindChat {
			return
		}

		out, _ := protocol.NewServerMessage(protocol.TypeChat, protocol.ServerChatMsg{
			ID: 7, Username: in.Chat.Username, Text: in.Chat.Text, Timestamp: time.Now(),
		})
		_ = wsutil.WriteServerText(conn, out)
		notice, _ := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{Message: protocol.BannedNotice})
		_ = wsutil.WriteServerText(conn, notice)
	}))
}

func TestClient_SendAndReceive(t *testing.T) {
	req := require.New(t)
	forwarded := make(chan string, 1)
	srv := echoServer(t, forwarded)
	defer srv.Close()

	chats := make(chan protocol.ServerChatMsg, 1)
	errs := make(chan protocol.ErrorMsg, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), Options{
		ForwardedFor: "10.1.2.3",
		OnChat:       func(m protocol.ServerChatMsg) { chats <- m },
		OnError:      func(m protocol.ErrorMsg) { errs <- m },
	})
	req.NoError(err)
	defer c.Close()

	req.Equal("10.1.2.3", <-forwarded)
	req.NoError(c.SendChat("alice", "hello"))

	select {
	case m := <-chats:
		req.Equal(int64(7), m.ID)
		req.Equal("hello", m.Text)
	case <-time.After(2 * time.Second):
		req.Fail("no chat frame")
	}
	select {
	case m := <-errs:
		req.Equal(protocol.BannedNotice, m.Message)
	case <-time.After(2 * time.Second):
		req.Fail("no error frame")
	}

	<-c.Done()
	m := c.Metrics()
	req.Equal(int64(1), m.MessagesSent)
	req.Equal(int64(2), m.MessagesReceived)
	req.GreaterOrEqual(m.Errors, int64(1))
	req.Positive(m.ConnectLatency)
}

func TestClient_CloseIsQuiet(t *testing.T) {
	req := require.New(t)
	forwarded := make(chan string, 1)
	srv := echoServer(t, forwarded)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), Options{})
	req.NoError(err)
	<-forwarded

	req.NoError(c.Close())
	req.NoError(c.Close())
	<-c.Done()
	req.Zero(c.Metrics().Errors)
}
