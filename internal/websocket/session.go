// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/smarthunt/relay/internal/auth"
	"github.com/smarthunt/relay/internal/broker"
	"github.com/smarthunt/relay/internal/counter"
	"github.com/smarthunt/relay/internal/event"
	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, commands are tiny
	sendBuffer     = 256

	// counterTimeout bounds each unread-counter call issued on behalf
	// of a client command so a stalled Redis cannot wedge the readPump.
	counterTimeout = 5 * time.Second
)

// Close reasons recorded in the relay_sessions_closed_total metric.
const (
	CloseReasonClient       = "client_disconnect"
	CloseReasonReadError    = "read_error"
	CloseReasonSlowConsumer = "slow_consumer"
	CloseReasonSubscription = "subscription_lost"
	CloseReasonShutdown     = "server_shutdown"
	CloseReasonInternal     = "internal_error"
)

// sessionIDCounter generates unique, monotonically increasing session IDs
// so log lines from concurrent sessions of the same user stay attributable.
var sessionIDCounter atomic.Uint64

// Session is one authenticated WebSocket connection. It bridges the
// client and the user's broker group: broker events flow out through
// forwardPump and writePump, client commands flow in through readPump.
type Session struct {
	id       uint64
	identity auth.Identity
	conn     *websocket.Conn
	sub      broker.Subscription
	registry *Registry
	counters counter.Service
	limiter  *rate.Limiter

	send chan []byte
	done chan struct{}

	// sentSeq numbers data frames written to this connection; lastActivity
	// holds the unix-nano time of the most recent read or write.
	sentSeq      atomic.Uint64
	lastActivity atomic.Int64

	closeOnce sync.Once
}

// NewSession wraps an upgraded connection. The subscription must already
// be attached to the user's group; commandRate bounds how many inbound
// commands per second the session accepts before pushing back.
func NewSession(conn *websocket.Conn, identity auth.Identity, sub broker.Subscription, registry *Registry, counters counter.Service, commandRate rate.Limit, commandBurst int) *Session {
	s := &Session{
		id:       sessionIDCounter.Add(1),
		identity: identity,
		conn:     conn,
		sub:      sub,
		registry: registry,
		counters: counters,
		limiter:  rate.NewLimiter(commandRate, commandBurst),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	s.touch()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() uint64 { return s.id }

// UserID returns the authenticated user's ID.
func (s *Session) UserID() string { return s.identity.UserID }

// SentCount returns how many data frames this session has written.
func (s *Session) SentCount() uint64 { return s.sentSeq.Load() }

// LastActivity returns when the session last read or wrote a frame.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Start registers the session, sends the connection_established greeting
// and the user's current unread count, then launches the three pumps.
func (s *Session) Start() {
	s.registry.Register(s)

	s.sendEvent(event.NewConnectionEstablished(s.identity.UserID, s.identity.Username))
	s.pushUnreadCount()

	go s.writePump()
	go s.forwardPump()
	go s.readPump()
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseGoingAway closes the session with a going-away frame. Used when
// the server itself is shutting down.
func (s *Session) CloseGoingAway() {
	s.teardown(websocket.CloseGoingAway, CloseReasonShutdown)
}

// teardown is the single exit path for every failure mode. It sends a
// close frame, drops the broker subscription, unregisters and closes the
// underlying connection exactly once; later callers are no-ops.
func (s *Session) teardown(closeCode int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(closeCode, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			logging.Debug().Err(err).Uint64("session_id", s.id).Msg("close frame not delivered")
		}

		if err := s.sub.Close(); err != nil {
			logging.Debug().Err(err).Uint64("session_id", s.id).Msg("subscription close failed")
		}
		_ = s.conn.Close()

		s.registry.Unregister(s)
		close(s.done)

		metrics.RecordSessionClosed(reason)
		logging.Info().
			Str("user_id", s.identity.UserID).
			Uint64("session_id", s.id).
			Str("reason", reason).
			Uint64("frames_sent", s.sentSeq.Load()).
			Msg("session closed")
	})
}

// enqueue places a marshaled frame on the send queue. A full queue means
// the client is not draining its socket; the session is closed rather
// than letting backpressure stall the broker pump.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	case <-s.done:
		return false
	default:
		logging.Warn().
			Str("user_id", s.identity.UserID).
			Uint64("session_id", s.id).
			Msg("send queue full, closing slow consumer")
		metrics.RecordEventDropped()
		go s.teardown(websocket.CloseInternalServerErr, CloseReasonSlowConsumer)
		return false
	}
}

func (s *Session) sendEvent(ev event.Event) {
	payload, err := event.Marshal(ev)
	if err != nil {
		logging.Error().Err(err).Uint64("session_id", s.id).Msg("failed to marshal outbound event")
		return
	}
	s.enqueue(payload)
}

// pushUnreadCount queries the counter service and queues an unread_count
// event. Counter failures are reported to the client but never fatal.
func (s *Session) pushUnreadCount() {
	ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
	defer cancel()

	count, err := s.counters.Count(ctx, s.identity.UserID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", s.identity.UserID).Msg("unread count lookup failed")
		s.sendEvent(event.NewError("unread count unavailable", "counter_unavailable"))
		return
	}
	s.sendEvent(event.NewUnreadCount(count))
}

// readPump consumes inbound frames until the connection drops. Every
// command error is answered with an error event; only transport failures
// end the session.
func (s *Session) readPump() {
	defer s.teardown(websocket.CloseNormalClosure, CloseReasonClient)

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}

		// Any inbound frame counts as heartbeat activity, not just pongs.
		// A client issuing commands must not be cut for a missed pong.
		s.touch()
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logging.Error().Err(err).Msg("failed to refresh read deadline")
			return
		}
		metrics.RecordMessageReceived()

		if !s.limiter.Allow() {
			s.sendEvent(event.NewError("too many commands", "rate_limited"))
			continue
		}

		cmd, err := event.ParseCommand(data)
		if err != nil {
			metrics.RecordCommandError()
			switch {
			case errors.Is(err, event.ErrUnknownCommand):
				s.sendEvent(event.NewError(err.Error(), "unknown_command"))
			default:
				s.sendEvent(event.NewError(err.Error(), "malformed_command"))
			}
			continue
		}

		s.handleCommand(cmd)
	}
}

// handleCommand executes one validated client command. Counter
// mutations answer with the refreshed unread count so the issuing tab
// updates its badge immediately.
func (s *Session) handleCommand(cmd event.Command) {
	metrics.RecordCommand(string(cmd.Type))

	ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
	defer cancel()

	switch cmd.Type {
	case event.CmdPing:
		s.sendEvent(event.NewPong())

	case event.CmdGetUnreadCount:
		count, err := s.counters.Count(ctx, s.identity.UserID)
		if err != nil {
			s.commandFailed(cmd, err)
			return
		}
		s.sendEvent(event.NewUnreadCount(count))

	case event.CmdMarkRead:
		count, err := s.counters.MarkRead(ctx, s.identity.UserID, cmd.NotificationID)
		if err != nil {
			s.commandFailed(cmd, err)
			return
		}
		s.sendEvent(event.NewUnreadCount(count))

	case event.CmdMarkAllRead:
		if err := s.counters.MarkAllRead(ctx, s.identity.UserID); err != nil {
			s.commandFailed(cmd, err)
			return
		}
		s.sendEvent(event.NewUnreadCount(0))
	}
}

func (s *Session) commandFailed(cmd event.Command, err error) {
	metrics.RecordCommandError()
	logging.Warn().Err(err).
		Str("user_id", s.identity.UserID).
		Str("command", string(cmd.Type)).
		Msg("command failed")
	s.sendEvent(event.NewError("unread counter unavailable", "counter_unavailable"))
}

// forwardPump moves events from the user's broker group onto the send
// queue. Notifications are chased with a refreshed unread count so the
// client badge stays current without polling.
func (s *Session) forwardPump() {
	for {
		select {
		case <-s.done:
			return
		case payload, ok := <-s.sub.Events():
			if !ok {
				// The broker dropped the subscription underneath us.
				s.teardown(websocket.CloseInternalServerErr, CloseReasonSubscription)
				return
			}

			typ, err := event.PeekType(payload)
			if err != nil {
				logging.Warn().Err(err).Str("user_id", s.identity.UserID).Msg("discarding undecodable broker payload")
				metrics.RecordEventDropped()
				continue
			}

			if !s.enqueue(payload) {
				return
			}
			metrics.RecordEventForwarded()

			if typ == event.TypeNotification {
				s.pushUnreadCount()
			}
		}
	}
}

// writePump owns the wire. All frames, data and ping control alike, are
// written from this single goroutine.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.teardown(websocket.CloseNormalClosure, CloseReasonInternal)
	}()

	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("session_id", s.id).Msg("write failed")
				return
			}
			s.sentSeq.Add(1)
			s.touch()
			metrics.RecordMessageSent()

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
