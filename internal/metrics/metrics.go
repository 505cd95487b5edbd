// Package metrics provides Prometheus instrumentation for the chat server:
// gauges for connection counts, counters for message throughput, and a
// histogram for fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of authenticated WebSocket
	// connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Current number of authenticated WebSocket connections",
	})

	// MessagesPersisted counts messages durably stored, labeled by kind:
	// "direct" or "group".
	MessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_persisted_total",
		Help: "Total number of messages durably persisted",
	}, []string{"kind"})

	// MessagesDelivered counts live deliveries to online recipients, labeled
	// by kind: "direct" or "group".
	MessagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_delivered_total",
		Help: "Total number of live message deliveries to online recipients",
	}, []string{"kind"})

	// MessagesSkipped counts deliveries that were not attempted or failed,
	// labeled by reason: "offline" or "write_failed".
	MessagesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_skipped_total",
		Help: "Total number of live deliveries skipped or failed",
	}, []string{"reason"})

	// FanoutLatency records the time from successful persistence to fan-out
	// completion, in seconds.
	FanoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_fanout_latency_seconds",
		Help:    "Time from successful persistence to fan-out completion",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// RosterBroadcasts counts online-roster broadcasts triggered by connects
	// and disconnects.
	RosterBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_roster_broadcasts_total",
		Help: "Total number of online-roster broadcasts",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesPersisted,
		MessagesDelivered,
		MessagesSkipped,
		FanoutLatency,
		RosterBroadcasts,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
