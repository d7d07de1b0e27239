// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package broker

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// subscriptionBuffer bounds how many undrained events a single
// subscription may hold before its pump blocks on the broker side. The
// session layer drains aggressively and tears down slow consumers, so
// this buffer only absorbs short bursts.
const subscriptionBuffer = 64

// MemoryBroker is an in-process Broker backed by watermill's gochannel
// pub/sub. A single shared instance gives multiple relay components (or
// multiple simulated processes in tests) the same group semantics as the
// NATS broker: fan-out to all live subscriptions, silent drop with none.
type MemoryBroker struct {
	pubsub *gochannel.GoChannel

	mu     sync.Mutex
	closed bool
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: subscriptionBuffer,
		}, watermill.NopLogger{}),
	}
}

// Publish implements Broker.
func (b *MemoryBroker) Publish(_ context.Context, userID string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(GroupName(userID), msg); err != nil {
		return ErrUnavailable
	}
	return nil
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, GroupName(userID))
	if err != nil {
		cancel()
		return nil, ErrUnavailable
	}

	return newSubscription(subCtx, cancel, msgs, subscriptionBuffer), nil
}

// Healthy reports readiness; an in-process broker is up until closed.
func (b *MemoryBroker) Healthy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Broker. All subscriptions are terminated.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
