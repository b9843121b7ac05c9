package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatify",
		Name:      "connections_online",
		Help:      "Number of users with a live socket connection.",
	})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatify",
		Name:      "events_delivered_total",
		Help:      "Events queued on a live connection, by event name.",
	}, []string{"event"})

	// reason is "offline", "unroutable" or "overflow".
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatify",
		Name:      "events_dropped_total",
		Help:      "Events not delivered, by event name and reason.",
	}, []string{"event", "reason"})

	AssistantReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatify",
		Name:      "assistant_replies_total",
		Help:      "Reply generator calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	AssistantLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatify",
		Name:      "assistant_reply_seconds",
		Help:      "Reply generator latency including retries.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"provider"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatify",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter, by scope.",
	}, []string{"scope"})
)
