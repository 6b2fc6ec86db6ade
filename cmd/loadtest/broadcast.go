package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/stargaze/chat-gateway/internal/loadtest"
	"github.com/stargaze/chat-gateway/internal/protocol"
)

const stampPrefix = "lt:"

// runBroadcast connects every client, then lets the first senders each send
// messages chat frames. Every frame carries its send time, so each receiver
// can record the delivery latency of its copy.
func runBroadcast(args []string) {
	fs := flag.NewFlagSet("broadcast", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:3000/ws", "WebSocket server URL")
	clientsN := fs.Int("clients", 200, "Number of connected clients")
	senders := fs.Int("senders", 10, "How many of the clients send messages")
	messages := fs.Int("messages", 20, "Messages per sender")
	rate := fs.Duration("interval", 100*time.Millisecond, "Delay between one sender's messages")
	drain := fs.Duration("drain", 5*time.Second, "How long to wait for outstanding copies")
	spread := fs.Bool("spread", false, "Send a distinct X-Forwarded-For address per connection")
	_ = fs.Parse(args)

	if *senders > *clientsN {
		*senders = *clientsN
	}
	expected := *clientsN * *senders * *messages
	fmt.Printf("Broadcast test: %d clients, %d senders x %d messages to %s (expect %d copies)\n",
		*clientsN, *senders, *messages, *url, expected)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadtest.NewCollector()
	onChat := func(m protocol.ServerChatMsg) {
		if sent, ok := parseStamp(m.Text); ok {
			collector.AddDelivery(time.Since(sent))
		}
	}

	fmt.Println("\n--- Connect phase ---")
	clients := make([]*loadtest.Client, *clientsN)
	var wg sync.WaitGroup
	sem := make(chan struct{}, 50)
	for i := range clients {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			c, err := loadtest.Dial(connCtx, *url, loadtest.Options{
				ForwardedFor: fakeAddress(*spread, i),
				OnChat:       onChat,
				OnError:      func(protocol.ErrorMsg) { collector.AddRefused() },
			})
			if err != nil {
				collector.AddError()
				return
			}
			collector.AddConnect(c.Metrics().ConnectLatency)
			clients[i] = c
		}()
	}
	wg.Wait()
	fmt.Printf("Connected %d/%d\n", collector.ConnectionCount(), *clientsN)

	// Give the gateway a moment to register the last connections.
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n--- Send phase ---")
	for s := 0; s < *senders; s++ {
		c := clients[s]
		if c == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			username := "loadtest-" + strconv.Itoa(s)
			for n := 0; n < *messages; n++ {
				if ctx.Err() != nil {
					return
				}
				if err := c.SendChat(username, stamp(time.Now())); err != nil {
					collector.AddError()
					return
				}
				time.Sleep(*rate)
			}
		}()
	}
	wg.Wait()

	fmt.Println("\n--- Drain phase ---")
	deadline := time.After(*drain)
	ticker := time.NewTicker(250 * time.Millisecond)
drainLoop:
	for collector.Deliveries() < expected {
		select {
		case <-ctx.Done():
			break drainLoop
		case <-deadline:
			break drainLoop
		case <-ticker.C:
		}
	}
	ticker.Stop()

	for _, c := range clients {
		if c != nil {
			_ = c.Close()
		}
	}

	got := collector.Deliveries()
	fmt.Printf("Delivered %d/%d copies (%.2f%%)\n", got, expected, float64(got)/float64(max(expected, 1))*100)
	collector.Report(os.Stdout)
}

func stamp(t time.Time) string {
	return stampPrefix + strconv.FormatInt(t.UnixNano(), 10)
}

func parseStamp(text string) (time.Time, bool) {
	raw, ok := strings.CutPrefix(text, stampPrefix)
	if !ok {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
