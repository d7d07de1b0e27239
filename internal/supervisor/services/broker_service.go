// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package services

import (
	"context"
	"fmt"
	"time"
)

// BrokerServer matches the embedded NATS server lifecycle.
type BrokerServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// BrokerWatchdogService supervises an already-started embedded broker.
// The server is started before the tree (the client connections made
// during wiring need it listening); the watchdog's job is to notice a
// dead server and fail so suture logs and escalates, and to shut the
// server down when the tree stops.
type BrokerWatchdogService struct {
	server          BrokerServer
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewBrokerWatchdogService creates a watchdog over the embedded broker.
func NewBrokerWatchdogService(server BrokerServer, shutdownTimeout time.Duration) *BrokerWatchdogService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BrokerWatchdogService{
		server:          server,
		checkInterval:   5 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "broker-watchdog",
	}
}

// Serve implements suture.Service.
func (s *BrokerWatchdogService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("broker shutdown failed: %w", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if !s.server.IsRunning() {
				return fmt.Errorf("embedded broker stopped running")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *BrokerWatchdogService) String() string {
	return s.name
}
