// Package metrics provides Prometheus instrumentation for the chat gateway.
// It exposes a gauge for open connections, counters for admissions, inbound
// messages, deliveries and ban changes, and histograms for fan-out and
// persistence latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the number of connections in the registry.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatgw_connections_active",
		Help: "Current number of registered WebSocket connections",
	})

	// AdmissionsTotal counts connection attempts by result: "admitted",
	// "banned" or "rejected" (capacity or upgrade failure).
	AdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgw_admissions_total",
		Help: "Connection admission decisions",
	}, []string{"result"})

	// MessagesTotal counts inbound frames by outcome: "received", "persisted",
	// "ignored", "malformed" or "storage_error".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgw_messages_total",
		Help: "Inbound chat frames by outcome",
	}, []string{"outcome"})

	// DeliveriesTotal counts per-recipient broadcast writes by result.
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgw_deliveries_total",
		Help: "Broadcast deliveries by result",
	}, []string{"result"}) // result = "ok", "failed"

	// BroadcastDuration records how long a full fan-out takes.
	BroadcastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatgw_broadcast_duration_seconds",
		Help:    "Time to deliver one payload to every registered connection",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
	})

	// StoreAppendDuration records message persistence latency.
	StoreAppendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatgw_store_append_duration_seconds",
		Help:    "Message store append latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// BanEvents counts moderation changes by action: "ban" or "unban".
	BanEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgw_ban_events_total",
		Help: "Ban table changes made through the moderation surface",
	}, []string{"action"})

	// BanLookupErrors counts ban lookups that failed and were admitted.
	BanLookupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatgw_ban_lookup_errors_total",
		Help: "Ban lookups that failed and fell back to admitting the client",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		AdmissionsTotal,
		MessagesTotal,
		DeliveriesTotal,
		BroadcastDuration,
		StoreAppendDuration,
		BanEvents,
		BanLookupErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
