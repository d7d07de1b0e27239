// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP surface of the relay.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router over the given handler and middleware set.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Setup configures all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket endpoint skips the Prometheus wrapper: the
		// upgrade needs the raw ResponseWriter for connection hijack.
		r.With(router.middleware.RateLimitWebSocket()).Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(PrometheusMetrics())

			r.Post("/events", router.handler.DeliverEvent)
			r.Get("/connections", router.handler.Connections)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
