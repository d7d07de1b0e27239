// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "config-test-secret-at-least-32-chars!!"

// setBaseEnv satisfies the required settings so individual tests only
// override what they exercise.
func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testJWTSecret)
	t.Setenv("CONFIG_PATH", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("server.port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8090" {
		t.Errorf("Addr = %q, want 0.0.0.0:8090", cfg.Server.Addr())
	}
	if !cfg.NATS.Embedded {
		t.Error("nats.embedded should default to true")
	}
	if cfg.NATS.MaxReconnects != -1 {
		t.Errorf("nats.max_reconnects = %d, want -1", cfg.NATS.MaxReconnects)
	}
	if cfg.Redis.Enabled {
		t.Error("redis.enabled should default to false")
	}
	if cfg.Session.CommandRate != 10 || cfg.Session.CommandBurst != 20 {
		t.Errorf("session limits = %v/%v, want 10/20", cfg.Session.CommandRate, cfg.Session.CommandBurst)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("NATS_EMBEDDED", "false")
	t.Setenv("NATS_URL", "nats://broker.internal:4222")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://cache.internal:6379/1")
	t.Setenv("SESSION_COMMAND_RATE", "25")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9100 {
		t.Errorf("server = %s:%d, want 127.0.0.1:9100", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.NATS.Embedded {
		t.Error("nats.embedded should be overridden to false")
	}
	if cfg.NATS.URL != "nats://broker.internal:4222" {
		t.Errorf("nats.url = %q", cfg.NATS.URL)
	}
	if !cfg.Redis.Enabled || cfg.Redis.URL != "redis://cache.internal:6379/1" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Session.CommandRate != 25 {
		t.Errorf("session.command_rate = %v, want 25", cfg.Session.CommandRate)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CORS_ORIGINS", "https://smarthunt.example, https://app.smarthunt.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"https://smarthunt.example", "https://app.smarthunt.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("cors_origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("cors_origins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	setBaseEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9200
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("server.port = %d, want 9200 from file", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging.level = %q, want warn from file", cfg.Logging.Level)
	}
	// Untouched values keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want default", cfg.Server.Host)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	setBaseEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9200\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_PORT", "9300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("server.port = %d, want env override 9300", cfg.Server.Port)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Error("expected validation failure for short jwt_secret")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.NATS.Embedded = false
	cfg.NATS.URL = ""
	cfg.Redis.Enabled = true
	cfg.Redis.URL = ""
	cfg.Session.CommandRate = 0
	cfg.Session.CommandBurst = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{
		"server.port",
		"jwt_secret",
		"nats.url",
		"redis.url",
		"command_rate",
		"command_burst",
		"logging.format",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error missing %q: %s", want, msg)
		}
	}
}

func TestValidateAcceptsDefaultsWithSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testJWTSecret
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestEnvTransformSkipsUnmapped(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("PATH should be skipped, got %q", got)
	}
	if got := envTransformFunc("JWT_SECRET"); got != "security.jwt_secret" {
		t.Errorf("JWT_SECRET mapped to %q", got)
	}
	if got := envTransformFunc("nats_url"); got != "nats.url" {
		t.Errorf("nats_url mapped to %q", got)
	}
}

func TestDefaultTimeouts(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.NATS.ReconnectWait != 2*time.Second {
		t.Errorf("reconnect_wait = %v", cfg.NATS.ReconnectWait)
	}
}
