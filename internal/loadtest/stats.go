package loadtest

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// Summary is the distribution of a set of latency samples.
type Summary struct {
	Count int
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Summarize computes a Summary. It returns the zero value for no samples.
func Summarize(samples []time.Duration) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return Summary{
		Count: n,
		Avg:   sum / time.Duration(n),
		P50:   sorted[n/2],
		P95:   sorted[int(math.Ceil(float64(n)*0.95))-1],
		P99:   sorted[int(math.Ceil(float64(n)*0.99))-1],
		Max:   sorted[n-1],
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.Count)
}

// Collector aggregates results from many clients. All methods are safe for
// concurrent use.
type Collector struct {
	mu               sync.Mutex
	connectLatencies []time.Duration
	deliveryLatency  []time.Duration
	connections      int
	refused          int
	errors           int
	startTime        time.Time
}

// NewCollector creates a Collector whose clock starts now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddConnect records an established connection.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectLatencies = append(c.connectLatencies, d)
	c.connections++
	c.mu.Unlock()
}

// AddDelivery records the time from send to receipt of one broadcast copy.
func (c *Collector) AddDelivery(d time.Duration) {
	c.mu.Lock()
	c.deliveryLatency = append(c.deliveryLatency, d)
	c.mu.Unlock()
}

// AddRefused counts a connection the gateway turned away with an error frame.
func (c *Collector) AddRefused() {
	c.mu.Lock()
	c.refused++
	c.mu.Unlock()
}

// AddError counts a failed dial or send.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// ConnectionCount returns the number of established connections.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections
}

// ErrorCount returns the number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Deliveries returns the number of recorded broadcast copies.
func (c *Collector) Deliveries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveryLatency)
}

// Report writes a human-readable summary to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Fprintf(w, "Connections:  %d\n", c.connections)
	fmt.Fprintf(w, "Refused:      %d\n", c.refused)
	fmt.Fprintf(w, "Errors:       %d\n", c.errors)

	if attempts := c.connections + c.errors; attempts > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(c.errors)/float64(attempts)*100)
	}
	if len(c.connectLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Connect Latency ---")
		fmt.Fprintln(w, " ", Summarize(c.connectLatencies))
	}
	if len(c.deliveryLatency) > 0 {
		fmt.Fprintln(w, "\n--- Delivery Latency ---")
		fmt.Fprintln(w, " ", Summarize(c.deliveryLatency))
	}
	fmt.Fprintln(w)
}
