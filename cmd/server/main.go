// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Command server runs the SmartHunt notification relay.
//
// The relay accepts WebSocket connections from authenticated clients,
// fans notifications out to every open session of a user via NATS, and
// tracks per-user unread counts in Redis. Backend services hand events
// to the relay through POST /api/v1/events.
//
// Startup order matters:
//
//  1. Load configuration (koanf: defaults, then YAML file, then env vars)
//  2. Initialize zerolog from the logging section
//  3. Start the embedded NATS server, if enabled, so the broker client
//     has something to connect to
//  4. Construct broker, counters, verifier, registry, publisher
//  5. Build the Chi router and HTTP server
//  6. Hand long-running services to the suture supervisor tree
//
// Shutdown is driven by SIGINT/SIGTERM: the supervisor context is
// canceled, the HTTP server drains, every live session receives a
// close frame with code 1001 (going away), and the broker connection
// is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smarthunt/relay/internal/api"
	"github.com/smarthunt/relay/internal/auth"
	"github.com/smarthunt/relay/internal/broker"
	"github.com/smarthunt/relay/internal/config"
	"github.com/smarthunt/relay/internal/counter"
	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/notify"
	"github.com/smarthunt/relay/internal/supervisor"
	"github.com/smarthunt/relay/internal/supervisor/services"
	"github.com/smarthunt/relay/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting SmartHunt relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The embedded server must be listening before the broker client
	// dials it, so it starts outside the supervisor tree. The watchdog
	// service added below owns its shutdown.
	var embedded *broker.EmbeddedServer
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		embedded, err = broker.NewEmbeddedServer(broker.EmbeddedServerConfig{
			Host: cfg.NATS.EmbeddedHost,
			Port: cfg.NATS.EmbeddedPort,
		})
		if err != nil {
			return fmt.Errorf("start embedded NATS server: %w", err)
		}
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	b, err := broker.NewNATSBroker(broker.NATSConfig{
		URL:           natsURL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		CloseTimeout:  cfg.NATS.CloseTimeout,
	}, nil)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing broker")
		}
	}()
	logging.Info().Str("url", natsURL).Msg("Connected to NATS")

	// Unread counters live in Redis so every relay process sees the
	// same numbers. Without Redis the counters are process-local,
	// which is only suitable for single-instance deployments.
	var counters counter.Service
	if cfg.Redis.Enabled {
		client, err := counter.Connect(ctx, counter.RedisConfig{
			URL:            cfg.Redis.URL,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Redis client")
			}
		}()
		counters = counter.NewRedisService(client)
		logging.Info().Msg("Redis unread counters enabled")
	} else {
		counters = counter.NewMemoryService()
		logging.Warn().Msg("Redis disabled, unread counters are process-local")
	}

	verifier, err := auth.NewJWTVerifier(cfg.Security.JWTSecret)
	if err != nil {
		return fmt.Errorf("create JWT verifier: %w", err)
	}

	registry := websocket.NewRegistry()
	publisher := notify.NewPublisher(b, counters)

	handler := api.NewHandler(api.HandlerConfig{
		AllowedOrigins: cfg.Server.CORSOrigins,
		CommandRate:    cfg.Session.CommandRate,
		CommandBurst:   cfg.Session.CommandBurst,
	}, verifier, b, registry, counters, publisher)

	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})

	router := api.NewRouter(handler, middleware)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Structured logger for the supervisor tree. suture speaks slog,
	// so the zerolog backend is bridged through the adapter.
	slogLogger := logging.NewSlogLogger()

	tree := supervisor.NewTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})

	if embedded != nil {
		tree.AddMessagingService(services.NewBrokerWatchdogService(embedded, cfg.Server.ShutdownTimeout))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	// Drain the error channel until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// The HTTP listener is down; tell every remaining session to go away
	// so clients reconnect to another instance.
	registry.CloseAll()

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Relay stopped gracefully")
	return nil
}
