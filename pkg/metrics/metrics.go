// Package metrics registers the Prometheus instruments exported at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_webhook_events_total",
		Help: "Identity webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_messages_sent_total",
		Help: "Messages accepted into conversation logs.",
	})

	ConversationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_conversations_created_total",
		Help: "Conversations created, by kind.",
	}, []string{"kind"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_http_requests_total",
		Help: "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "status"})

	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_live_clients",
		Help: "Currently connected websocket clients.",
	})
)
