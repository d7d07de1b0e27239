// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package config defines the relay's configuration and its layered
// loader. Precedence is ENV > YAML file > built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the relay process.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	NATS     NATSConfig     `koanf:"nats"`
	Redis    RedisConfig    `koanf:"redis"`
	Security SecurityConfig `koanf:"security"`
	Session  SessionConfig  `koanf:"session"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// NATSConfig holds broker settings. With Embedded set, the relay runs an
// in-process NATS server and ignores URL; the external URL is for
// multi-process deployments sharing one broker.
type NATSConfig struct {
	Embedded      bool          `koanf:"embedded"`
	EmbeddedHost  string        `koanf:"embedded_host"`
	EmbeddedPort  int           `koanf:"embedded_port"`
	URL           string        `koanf:"url"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`
}

// RedisConfig holds unread-counter store settings. With Enabled false
// the relay falls back to an in-process counter, which is only correct
// for single-instance deployments.
type RedisConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryInterval  time.Duration `koanf:"retry_interval"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// SecurityConfig holds handshake authentication settings.
type SecurityConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

// SessionConfig bounds per-session behavior.
type SessionConfig struct {
	CommandRate  float64 `koanf:"command_rate"`
	CommandBurst int     `koanf:"command_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the host:port the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the loaded configuration for values that would fail at
// runtime. It reports all problems at once rather than the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Security.JWTSecret) < 32 {
		problems = append(problems, "security.jwt_secret must be at least 32 characters")
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required when nats.embedded is false")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		problems = append(problems, "redis.url is required when redis.enabled is true")
	}
	if c.Session.CommandRate <= 0 {
		problems = append(problems, "session.command_rate must be positive")
	}
	if c.Session.CommandBurst < 1 {
		problems = append(problems, "session.command_burst must be at least 1")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
