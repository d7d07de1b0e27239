// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package broker adapts the shared pub/sub layer that connects all relay
// processes.
//
// Delivery is addressed to logical per-user groups, never to individual
// connections: a publish reaches every live subscription of that group
// across every process, and is dropped silently when no subscription
// exists anywhere. Per-group ordering is preserved for each subscriber.
// Durability beyond the broker's own guarantees is out of scope; callers
// needing replay must persist events before publishing.
package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrUnavailable is returned when the backing broker cannot accept a
// publish or subscribe call. Callers may retry or fall back to a
// non-realtime path; the relay itself never retries.
var ErrUnavailable = errors.New("broker unavailable")

// ErrClosed is returned for operations on a closed broker.
var ErrClosed = errors.New("broker closed")

// GroupName derives the broker topic for a user identity. Exactly one
// group exists per user; any number of connections may subscribe to it.
func GroupName(userID string) string {
	return "user:" + userID
}

// Subscription is a live, order-preserving feed of events published to one
// user group. Events() yields raw wire payloads until Close or context
// cancellation, after which the channel is closed.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// Broker is the process-facing pub/sub surface.
//
// Publish is fire-and-forget: it returns once the broker accepted the
// event, not once any subscriber saw it. Subscribe registers the caller
// for all future events of the user's group; events published before the
// subscription existed are never replayed.
type Broker interface {
	Publish(ctx context.Context, userID string, payload []byte) error
	Subscribe(ctx context.Context, userID string) (Subscription, error)
	Close() error
}

// subscription adapts a watermill message channel to the Subscription
// interface shared by all broker implementations.
type subscription struct {
	events chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

// newSubscription starts the pump goroutine translating watermill messages
// into raw payloads. Messages are acked on receipt: the relay offers
// at-most-once delivery per live subscription.
func newSubscription(ctx context.Context, cancel context.CancelFunc, msgs <-chan *message.Message, buffer int) *subscription {
	sub := &subscription{
		events: make(chan []byte, buffer),
		cancel: cancel,
	}

	go func() {
		defer close(sub.events)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				msg.Ack()
				select {
				case sub.events <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub
}

// Events implements Subscription.
func (s *subscription) Events() <-chan []byte { return s.events }

// Close implements Subscription. Safe to call more than once; overlapping
// failure paths may both attempt cleanup.
func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
