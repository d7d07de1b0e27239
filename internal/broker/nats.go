// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/smarthunt/relay/internal/metrics"
)

// NATSConfig configures the connection to the shared NATS broker.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
}

// NATSBroker is the production Broker backed by core NATS pub/sub.
//
// JetStream is deliberately disabled: user groups are ephemeral topics
// with no retention, matching the relay's contract of at-most-once
// delivery per live subscription, silent drop with zero subscribers, and
// per-group in-order delivery. Publishes run behind a circuit
// breaker so a dead broker fails fast instead of hanging sessions.
type NATSBroker struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[any]

	mu     sync.Mutex
	closed bool
}

// NewNATSBroker connects a publisher and a subscriber to the configured
// NATS server with automatic reconnection.
func NewNATSBroker(cfg NATSConfig, logger watermill.LoggerAdapter) (*NATSBroker, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create broker publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		SubscribersCount: 1,
		CloseTimeout:     cfg.CloseTimeout,
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create broker subscriber: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "broker-publish",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 10 * time.Second,
	})

	return &NATSBroker{
		publisher:  pub,
		subscriber: sub,
		breaker:    breaker,
	}, nil
}

// Publish implements Broker. Returns once NATS accepted the event; a
// tripped breaker or broker failure surfaces as ErrUnavailable so the
// caller can persist-and-retry upstream.
func (b *NATSBroker) Publish(_ context.Context, userID string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.publisher.Publish(GroupName(userID), msg)
	})
	if err != nil {
		metrics.RecordPublishError()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	metrics.RecordEventPublished()
	return nil
}

// Subscribe implements Broker.
func (b *NATSBroker) Subscribe(ctx context.Context, userID string) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.subscriber.Subscribe(subCtx, GroupName(userID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return newSubscription(subCtx, cancel, msgs, subscriptionBuffer), nil
}

// Close implements Broker.
func (b *NATSBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	pubErr := b.publisher.Close()
	subErr := b.subscriber.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

// Healthy reports whether the broker can accept publishes. An open
// circuit breaker means recent publishes have been failing.
func (b *NATSBroker) Healthy() error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if b.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
	}
	return nil
}
