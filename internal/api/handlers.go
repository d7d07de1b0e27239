// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/smarthunt/relay/internal/auth"
	"github.com/smarthunt/relay/internal/broker"
	"github.com/smarthunt/relay/internal/counter"
	"github.com/smarthunt/relay/internal/event"
	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/notify"
	"github.com/smarthunt/relay/internal/validation"
	ws "github.com/smarthunt/relay/internal/websocket"
)

// Version is the reported relay version.
const Version = "1.0.0"

// healthChecker is implemented by dependencies that can report readiness.
type healthChecker interface {
	Healthy() error
}

// HandlerConfig bundles the session knobs the handler passes to every
// new connection.
type HandlerConfig struct {
	AllowedOrigins []string
	CommandRate    float64
	CommandBurst   int
}

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	config    HandlerConfig
	verifier  auth.Verifier
	broker    broker.Broker
	registry  *ws.Registry
	counters  counter.Service
	publisher *notify.Publisher
	startTime time.Time
}

// NewHandler creates an API handler.
func NewHandler(cfg HandlerConfig, verifier auth.Verifier, b broker.Broker, registry *ws.Registry, counters counter.Service, publisher *notify.Publisher) *Handler {
	return &Handler{
		config:    cfg,
		verifier:  verifier,
		broker:    b,
		registry:  registry,
		counters:  counters,
		publisher: publisher,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() gorilla.Upgrader {
	return gorilla.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates browser origins against the allow list.
// Non-browser clients (backend services, tests) omit the Origin header
// and are admitted; the token handshake is the real gate.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and runs the token handshake. The
// upgrade happens before credential validation so an invalid token can
// be answered with a proper close frame (1008) instead of an HTTP error
// the browser WebSocket API cannot surface.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket handshake rejected")
		h.closeWithPolicyViolation(conn, "invalid or missing token")
		return
	}

	sub, err := h.broker.Subscribe(context.Background(), identity.UserID)
	if err != nil {
		logging.Error().Err(err).Str("user_id", identity.UserID).Msg("broker subscription failed")
		msg := gorilla.FormatCloseMessage(gorilla.CloseInternalServerErr, "")
		_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(5*time.Second))
		_ = conn.Close()
		return
	}

	session := ws.NewSession(conn, identity, sub, h.registry, h.counters,
		rate.Limit(h.config.CommandRate), h.config.CommandBurst)
	session.Start()
}

func (h *Handler) closeWithPolicyViolation(conn *gorilla.Conn, reason string) {
	msg := gorilla.FormatCloseMessage(gorilla.ClosePolicyViolation, reason)
	_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(5*time.Second))
	_ = conn.Close()
}

// deliverRequest is the body of POST /api/v1/events.
type deliverRequest struct {
	UserIDs []string        `json:"user_ids" validate:"required,min=1,dive,required"`
	Event   json.RawMessage `json:"event" validate:"required"`
}

// DeliverEvent accepts an event from a backend collaborator and fans it
// out to the named recipients' groups.
func (h *Handler) DeliverEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	err := h.publisher.DeliverRaw(r.Context(), req.UserIDs, req.Event)
	switch {
	case err == nil:
		rw.Accepted(map[string]interface{}{
			"recipients": len(req.UserIDs),
		})
	case errors.Is(err, event.ErrUnknownType), errors.Is(err, notify.ErrNotDeliverable):
		rw.BadRequest(err.Error())
	case errors.Is(err, broker.ErrUnavailable), errors.Is(err, broker.ErrClosed):
		rw.ServiceUnavailable("event broker unavailable")
	default:
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			apiErr := verr.ToAPIError()
			rw.ValidationError(apiErr.Message, apiErr.Details)
			return
		}
		logging.Error().Err(err).Msg("event delivery failed")
		rw.InternalError("event delivery failed")
	}
}

// Connections reports live session counts for diagnostics.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	users := h.registry.ConnectedUsers()
	perUser := make(map[string]int, len(users))
	for _, userID := range users {
		perUser[userID] = h.registry.CountFor(userID)
	}

	rw.Success(map[string]interface{}{
		"total_sessions":    h.registry.Total(),
		"connected_users":   users,
		"sessions_per_user": perUser,
	})
}

// Health reports overall status with per-dependency detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	brokerUp := h.brokerHealthy()
	counterUp := h.counterHealthy(r.Context())

	status := "healthy"
	if !brokerUp || !counterUp {
		status = "degraded"
	}

	rw.Success(map[string]interface{}{
		"status":            status,
		"version":           Version,
		"broker_connected":  brokerUp,
		"counter_connected": counterUp,
		"active_sessions":   h.registry.Total(),
		"uptime":            time.Since(h.startTime).Seconds(),
	})
}

// HealthLive is the liveness probe: 200 whenever the process runs.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is the readiness probe: 200 only when the broker and the
// unread counter store both answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	brokerUp := h.brokerHealthy()
	counterUp := h.counterHealthy(r.Context())

	body := map[string]interface{}{
		"broker_connected":  brokerUp,
		"counter_connected": counterUp,
		"ready_to_serve":    brokerUp && counterUp,
		"uptime":            time.Since(h.startTime).Seconds(),
	}

	if !brokerUp || !counterUp {
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    body,
		})
		return
	}
	rw.Success(body)
}

func (h *Handler) brokerHealthy() bool {
	if hc, ok := h.broker.(healthChecker); ok {
		return hc.Healthy() == nil
	}
	return true
}

func (h *Handler) counterHealthy(ctx context.Context) bool {
	type pinger interface {
		Ping(context.Context) error
	}
	if p, ok := h.counters.(pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return p.Ping(ctx) == nil
	}
	return true
}
