// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package notify is the single write path into the relay. Backend
// collaborators hand it typed events; it stamps the unread counter for
// notifications and publishes to the recipient's broker group.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/smarthunt/relay/internal/broker"
	"github.com/smarthunt/relay/internal/counter"
	"github.com/smarthunt/relay/internal/event"
	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/validation"
)

// ErrNotDeliverable is returned when a caller hands the publisher an
// event type reserved for session-originated traffic.
var ErrNotDeliverable = errors.New("event type is not deliverable")

// Publisher fans events out to per-user broker groups.
type Publisher struct {
	broker   broker.Broker
	counters counter.Service
}

// NewPublisher wires the delivery path to a broker and counter service.
func NewPublisher(b broker.Broker, counters counter.Service) *Publisher {
	return &Publisher{broker: b, counters: counters}
}

// Deliver publishes one event to one recipient. For notifications the
// unread counter is bumped before publication so a session that receives
// the event and immediately asks for its count never sees a stale value.
// A counter failure is logged and delivery proceeds; a broker failure is
// returned to the caller, who decides whether to retry.
func (p *Publisher) Deliver(ctx context.Context, userID string, ev event.Event) error {
	if userID == "" {
		return fmt.Errorf("deliver: empty user ID")
	}
	if !ev.EventType().Deliverable() {
		return fmt.Errorf("%w: %q", ErrNotDeliverable, ev.EventType())
	}
	if verr := validation.ValidateStruct(ev); verr != nil {
		return fmt.Errorf("deliver %s: %w", ev.EventType(), verr)
	}

	if n, ok := ev.(event.Notification); ok {
		if _, err := p.counters.MarkUnread(ctx, userID, n.NotificationID); err != nil {
			// The notification still goes out; the badge catches up on
			// the next successful counter call.
			logging.Warn().Err(err).
				Str("user_id", userID).
				Int64("notification_id", n.NotificationID).
				Msg("unread counter update failed, delivering anyway")
		}
	}

	payload, err := event.Marshal(ev)
	if err != nil {
		return err
	}

	if err := p.broker.Publish(ctx, userID, payload); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", ev.EventType(), userID, err)
	}

	logging.Debug().
		Str("user_id", userID).
		Str("event_type", string(ev.EventType())).
		Msg("event delivered")
	return nil
}

// DeliverMany publishes the same event to several recipients. Delivery
// is attempted for every recipient even when some fail; the returned
// error joins the per-recipient failures.
func (p *Publisher) DeliverMany(ctx context.Context, userIDs []string, ev event.Event) error {
	var errs []error
	for _, userID := range userIDs {
		if err := p.Deliver(ctx, userID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeliverRaw decodes an externally supplied wire object and delivers it.
// Used by the HTTP ingestion endpoint, which receives events as JSON.
func (p *Publisher) DeliverRaw(ctx context.Context, userIDs []string, data []byte) error {
	ev, err := event.FromWire(data)
	if err != nil {
		return err
	}
	return p.DeliverMany(ctx, userIDs, ev)
}

// Healthy reports whether both downstream dependencies answer. Used by
// the readiness probe.
func (p *Publisher) Healthy(ctx context.Context) error {
	type pinger interface {
		Ping(context.Context) error
	}
	if c, ok := p.counters.(pinger); ok {
		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("counter: %w", err)
		}
	}
	return nil
}
