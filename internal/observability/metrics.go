// Package observability provides prometheus collectors and tracing for the application.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// WebSocketSessionConnections is the gauge of connections per Q&A session.
	WebSocketSessionConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "greenroom_websocket_session_connections",
		Help: "Number of WebSocket connections per session",
	}, []string{"session_id"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// EventsPublished counts realtime events by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_events_published_total",
		Help: "Total realtime events published by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// VerificationOutcomes counts verification attempts by outcome.
	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenroom_verification_outcomes_total",
		Help: "Total email verification attempts by outcome",
	}, []string{"outcome"})
)
