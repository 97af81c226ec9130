// Package metrics provides Prometheus instrumentation for the cheering
// chat engine. It exposes gauges for connection and presence counts,
// counters for message and broadcast throughput, and a histogram for
// posting latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cheerchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// PresenceMembers tracks the current authenticated member count.
	PresenceMembers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cheerchat_presence_members",
		Help: "Current number of member connections",
	})

	// PresenceAnonymous tracks the current distinct anonymous origin count.
	PresenceAnonymous = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cheerchat_presence_anonymous",
		Help: "Current number of distinct anonymous origins",
	})

	// MessagesTotal counts posted messages, labeled by outcome: "sent",
	// "rejected", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cheerchat_messages_total",
		Help: "Total number of message post attempts",
	}, []string{"outcome"})

	// LikeTogglesTotal counts like toggles.
	LikeTogglesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cheerchat_like_toggles_total",
		Help: "Total number of like toggles",
	})

	// BroadcastsTotal counts room and global broadcast publishes.
	BroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cheerchat_broadcasts_total",
		Help: "Total number of broadcast publishes",
	})

	// DroppedWritesTotal counts per-recipient delivery failures during
	// broadcast (dead connections awaiting heartbeat eviction).
	DroppedWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cheerchat_dropped_writes_total",
		Help: "Total number of per-recipient broadcast write failures",
	})

	// PostLatency records message posting latency in seconds.
	PostLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cheerchat_post_latency_seconds",
		Help:    "Message posting latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		PresenceMembers,
		PresenceAnonymous,
		MessagesTotal,
		LikeTogglesTotal,
		BroadcastsTotal,
		DroppedWritesTotal,
		PostLatency,
	)
}

// SetPresence updates the presence gauges from aggregate counts.
func SetPresence(anonymous, member int) {
	PresenceAnonymous.Set(float64(anonymous))
	PresenceMembers.Set(float64(member))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
