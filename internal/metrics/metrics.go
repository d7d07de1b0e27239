// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package metrics provides Prometheus instrumentation for the relay:
// connection lifecycle, broker throughput, command processing, unread
// counter health, and API latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection Metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_sessions_closed_total",
			Help: "Total number of closed sessions by close reason",
		},
		[]string{"reason"}, // "client_disconnect", "slow_consumer", "server_shutdown", ...
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Total number of messages written to client sockets",
		},
	)

	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Total number of messages read from client sockets",
		},
	)

	// Broker Metrics
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Total number of events accepted by the broker",
		},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_publish_errors_total",
			Help: "Total number of failed broker publishes",
		},
	)

	EventsForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_events_forwarded_total",
			Help: "Total number of broker events forwarded to client sockets",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of events dropped due to slow consumers",
		},
	)

	// Command Metrics
	CommandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_commands_processed_total",
			Help: "Total number of client commands processed by type",
		},
		[]string{"command"},
	)

	CommandErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_command_errors_total",
			Help: "Total number of malformed or unknown client commands",
		},
	)

	// Unread Counter Service Metrics
	CounterErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_counter_errors_total",
			Help: "Total number of failed unread counter operations",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// TrackConnection adjusts the active connection gauge.
func TrackConnection(open bool) {
	if open {
		ActiveConnections.Inc()
	} else {
		ActiveConnections.Dec()
	}
}

// RecordSessionClosed records a session teardown with its close reason.
func RecordSessionClosed(reason string) {
	SessionsClosed.WithLabelValues(reason).Inc()
}

// RecordMessageSent records a message written to a client socket.
func RecordMessageSent() {
	MessagesSent.Inc()
}

// RecordMessageReceived records a message read from a client socket.
func RecordMessageReceived() {
	MessagesReceived.Inc()
}

// RecordEventPublished records an event accepted by the broker.
func RecordEventPublished() {
	EventsPublished.Inc()
}

// RecordPublishError records a failed broker publish.
func RecordPublishError() {
	PublishErrors.Inc()
}

// RecordEventForwarded records a broker event forwarded to a socket.
func RecordEventForwarded() {
	EventsForwarded.Inc()
}

// RecordEventDropped records an event lost to a slow consumer teardown.
func RecordEventDropped() {
	EventsDropped.Inc()
}

// RecordCommand records a processed client command.
func RecordCommand(command string) {
	CommandsProcessed.WithLabelValues(command).Inc()
}

// RecordCommandError records a rejected client command.
func RecordCommandError() {
	CommandErrors.Inc()
}

// RecordCounterError records a failed unread counter operation.
func RecordCounterError() {
	CounterErrors.Inc()
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active API request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// FormatStatusCode converts an HTTP status to its label form.
func FormatStatusCode(code int) string {
	return strconv.Itoa(code)
}
