// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/smarthunt/relay/internal/auth"
	"github.com/smarthunt/relay/internal/broker"
	"github.com/smarthunt/relay/internal/counter"
	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/notify"
	ws "github.com/smarthunt/relay/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// testAPI bundles a fully wired relay API behind an httptest server.
type testAPI struct {
	broker   *broker.MemoryBroker
	counters *counter.MemoryService
	registry *ws.Registry
	server   *httptest.Server
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()

	a := &testAPI{
		broker:   broker.NewMemoryBroker(),
		counters: counter.NewMemoryService(),
		registry: ws.NewRegistry(),
	}

	verifier := auth.StaticVerifier{
		"valid-token": {UserID: "u1", Username: "alice"},
		"bob-token":   {UserID: "u2", Username: "bob"},
	}
	publisher := notify.NewPublisher(a.broker, a.counters)

	handler := NewHandler(HandlerConfig{
		AllowedOrigins: []string{"https://smarthunt.example"},
		CommandRate:    100,
		CommandBurst:   100,
	}, verifier, a.broker, a.registry, a.counters, publisher)

	mw := NewMiddleware(&MiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	})

	a.server = httptest.NewServer(NewRouter(handler, mw).Setup())
	t.Cleanup(func() {
		a.server.Close()
		a.broker.Close()
	})
	return a
}

// getJSON performs a GET and decodes the envelope.
func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func postJSON(t *testing.T, url, payload string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return d
}

func TestHealth(t *testing.T) {
	a := setupAPI(t)

	status, body := getJSON(t, a.server.URL+"/api/v1/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}

	d := data(t, body)
	if d["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", d["status"])
	}
	if d["version"] != Version {
		t.Errorf("version = %v, want %s", d["version"], Version)
	}
	if d["broker_connected"] != true || d["counter_connected"] != true {
		t.Errorf("dependency flags: %v", d)
	}
	if d["active_sessions"] != float64(0) {
		t.Errorf("active_sessions = %v, want 0", d["active_sessions"])
	}
}

func TestHealthLive(t *testing.T) {
	a := setupAPI(t)

	status, body := getJSON(t, a.server.URL+"/api/v1/health/live")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if data(t, body)["alive"] != true {
		t.Errorf("alive = %v, want true", data(t, body)["alive"])
	}
}

func TestHealthReady(t *testing.T) {
	a := setupAPI(t)

	status, body := getJSON(t, a.server.URL+"/api/v1/health/ready")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if data(t, body)["ready_to_serve"] != true {
		t.Errorf("ready_to_serve = %v, want true", data(t, body)["ready_to_serve"])
	}
}

func TestHealthReadyDegradedBroker(t *testing.T) {
	a := setupAPI(t)
	a.broker.Close()

	status, body := getJSON(t, a.server.URL+"/api/v1/health/ready")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
	if data(t, body)["broker_connected"] != false {
		t.Errorf("broker_connected = %v, want false", data(t, body)["broker_connected"])
	}

	// The full health report degrades too, but stays 200.
	status, body = getJSON(t, a.server.URL+"/api/v1/health")
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if data(t, body)["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", data(t, body)["status"])
	}
}

func TestDeliverEvent(t *testing.T) {
	a := setupAPI(t)

	sub, err := a.broker.Subscribe(t.Context(), "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	status, body := postJSON(t, a.server.URL+"/api/v1/events",
		`{"user_ids":["u1"],"event":{"type":"notification","title":"Viewing confirmed","notification_id":31}}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %v)", status, body)
	}
	if data(t, body)["recipients"] != float64(1) {
		t.Errorf("recipients = %v, want 1", data(t, body)["recipients"])
	}

	select {
	case payload := <-sub.Events():
		if !strings.Contains(string(payload), `"Viewing confirmed"`) {
			t.Errorf("unexpected payload: %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the broker group")
	}

	count, _ := a.counters.Count(t.Context(), "u1")
	if count != 1 {
		t.Errorf("unread count = %d, want 1", count)
	}
}

func TestDeliverEventBadRequests(t *testing.T) {
	a := setupAPI(t)

	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"invalid JSON", `{`, http.StatusBadRequest},
		{"missing user_ids", `{"event":{"type":"notification","title":"T","notification_id":1}}`, http.StatusBadRequest},
		{"empty user_ids", `{"user_ids":[],"event":{"type":"notification","title":"T","notification_id":1}}`, http.StatusBadRequest},
		{"blank recipient", `{"user_ids":[""],"event":{"type":"notification","title":"T","notification_id":1}}`, http.StatusBadRequest},
		{"missing event", `{"user_ids":["u1"]}`, http.StatusBadRequest},
		{"unknown event type", `{"user_ids":["u1"],"event":{"type":"telemetry"}}`, http.StatusBadRequest},
		{"undeliverable type", `{"user_ids":["u1"],"event":{"type":"pong"}}`, http.StatusBadRequest},
		{"invalid notification", `{"user_ids":["u1"],"event":{"type":"notification","body":"no title"}}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := postJSON(t, a.server.URL+"/api/v1/events", tc.payload)
			if status != tc.want {
				t.Errorf("status = %d, want %d (body %v)", status, tc.want, body)
			}
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
		})
	}
}

func TestDeliverEventBrokerDown(t *testing.T) {
	a := setupAPI(t)
	a.broker.Close()

	status, _ := postJSON(t, a.server.URL+"/api/v1/events",
		`{"user_ids":["u1"],"event":{"type":"notification","title":"T","notification_id":1}}`)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
}

func TestConnectionsEmpty(t *testing.T) {
	a := setupAPI(t)

	status, body := getJSON(t, a.server.URL+"/api/v1/connections")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	d := data(t, body)
	if d["total_sessions"] != float64(0) {
		t.Errorf("total_sessions = %v, want 0", d["total_sessions"])
	}
}

func wsURL(server *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestWebSocketHandshake(t *testing.T) {
	a := setupAPI(t)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(a.server, "valid-token"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var ev map[string]any
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev["type"] != "connection_established" || ev["user_id"] != "u1" {
		t.Errorf("unexpected greeting: %v", ev)
	}

	// The session shows up in the diagnostics endpoint.
	_, body := getJSON(t, a.server.URL+"/api/v1/connections")
	if data(t, body)["total_sessions"] != float64(1) {
		t.Errorf("total_sessions = %v, want 1", data(t, body)["total_sessions"])
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	a := setupAPI(t)

	for _, token := range []string{"", "wrong-token"} {
		// The upgrade succeeds either way; rejection arrives as a 1008
		// close frame, which browsers can observe.
		conn, _, err := gorilla.DefaultDialer.Dial(wsURL(a.server, token), nil)
		if err != nil {
			t.Fatalf("dial with token %q failed: %v", token, err)
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		if !gorilla.IsCloseError(err, gorilla.ClosePolicyViolation) {
			t.Errorf("token %q: expected policy violation close, got %v", token, err)
		}
		conn.Close()
	}

	if got := a.registry.Total(); got != 0 {
		t.Errorf("registry total = %d, want 0", got)
	}
}

func TestWebSocketRejectsBadOrigin(t *testing.T) {
	a := setupAPI(t)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := gorilla.DefaultDialer.Dial(wsURL(a.server, "valid-token"), header)
	if err == nil {
		t.Fatal("expected dial to fail for disallowed origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestWebSocketAllowsListedOrigin(t *testing.T) {
	a := setupAPI(t)

	header := http.Header{"Origin": []string{"https://smarthunt.example"}}
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(a.server, "valid-token"), header)
	if err != nil {
		t.Fatalf("dial with allowed origin failed: %v", err)
	}
	conn.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupAPI(t)

	resp, err := http.Get(a.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing standard collectors")
	}
}

func TestSecurityHeaders(t *testing.T) {
	a := setupAPI(t)

	resp, err := http.Get(a.server.URL + "/api/v1/connections")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
}
