package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stargaze/chat-gateway/internal/loadtest"
	"github.com/stargaze/chat-gateway/internal/protocol"
)

// runSaturate opens connections at a steady rate over the ramp period, then
// holds them while reporting how many the gateway dropped.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:3000/ws", "WebSocket server URL")
	connections := fs.Int("connections", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "Hold duration after all connections are open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	spread := fs.Bool("spread", false, "Send a distinct X-Forwarded-For address per connection")
	_ = fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadtest.NewCollector()

	var mu sync.Mutex
	clients := make([]*loadtest.Client, 0, *connections)

	fmt.Println("\n--- Ramp-up phase ---")

	interval := *rampUp / time.Duration(*connections)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	progressStop := make(chan struct{})
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [ramp] connections: %d/%d  errors: %d\n",
					collector.ConnectionCount(), *connections, collector.ErrorCount())
			case <-progressStop:
				return
			}
		}
	}()

	rampStart := time.Now()
	rampTicker := time.NewTicker(interval)
	interrupted := false

ramp:
	for launched := 0; launched < *connections; {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			interrupted = true
			break ramp
		case <-rampTicker.C:
			i := launched
			launched++
			wg.Add(1)
			sem <- struct{}{}

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()

				c, err := loadtest.Dial(connCtx, *url, loadtest.Options{
					ForwardedFor: fakeAddress(*spread, i),
					OnError:      func(protocol.ErrorMsg) { collector.AddRefused() },
				})
				if err != nil {
					collector.AddError()
					return
				}
				collector.AddConnect(c.Metrics().ConnectLatency)

				mu.Lock()
				clients = append(clients, c)
				mu.Unlock()
			}()
		}
	}

	rampTicker.Stop()
	wg.Wait()
	close(progressStop)
	progressWg.Wait()

	fmt.Printf("\nRamp-up complete: %d/%d connections in %s (%d errors)\n",
		collector.ConnectionCount(), *connections,
		time.Since(rampStart).Round(time.Millisecond), collector.ErrorCount())

	if !interrupted {
		fmt.Println("\n--- Hold phase ---")
		mu.Lock()
		initial := len(clients)
		mu.Unlock()
		fmt.Printf("Holding %d connections for %s...\n", initial, *hold)

		holdTimer := time.NewTimer(*hold)
		statusTicker := time.NewTicker(5 * time.Second)

	holdLoop:
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nInterrupted during hold phase.")
				break holdLoop
			case <-holdTimer.C:
				fmt.Println("\nHold period complete.")
				break holdLoop
			case <-statusTicker.C:
				fmt.Printf("  [hold] alive: %d/%d\n", aliveCount(&mu, clients), initial)
			}
		}
		holdTimer.Stop()
		statusTicker.Stop()

		if dropped := initial - aliveCount(&mu, clients); dropped > 0 {
			fmt.Printf("\nConnections dropped during hold: %d\n", dropped)
		}
	}

	fmt.Println("\n--- Cleanup ---")
	mu.Lock()
	for _, c := range clients {
		_ = c.Close()
	}
	mu.Unlock()

	collector.Report(os.Stdout)
}

func aliveCount(mu *sync.Mutex, clients []*loadtest.Client) int {
	mu.Lock()
	defer mu.Unlock()
	alive := 0
	for _, c := range clients {
		select {
		case <-c.Done():
		default:
			alive++
		}
	}
	return alive
}
