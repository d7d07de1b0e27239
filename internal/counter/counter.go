// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package counter tracks per-user unread notification counts.
//
// The count is the cardinality of the user's unread-ID set, not a bare
// integer: marking an already-read notification is a natural no-op, the
// count can never go negative, and concurrent mutations from multiple
// connections of one user cannot lose updates. The relay treats the
// backing store as an external collaborator and never caches a count as
// source of truth beyond one outbound message.
package counter

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers skip the unread refresh and log; notification delivery itself
// must never block on counter consistency.
var ErrUnavailable = errors.New("unread counter service unavailable")

// Service is the atomic per-user unread counter surface.
type Service interface {
	// MarkUnread records a notification as unread and returns the new count.
	MarkUnread(ctx context.Context, userID string, notificationID int64) (int64, error)

	// MarkRead marks one notification read and returns the new count.
	// Idempotent: marking an already-read notification changes nothing.
	MarkRead(ctx context.Context, userID string, notificationID int64) (int64, error)

	// MarkAllRead resets the user's unread count to zero.
	MarkAllRead(ctx context.Context, userID string) error

	// Count returns the current unread count without mutation.
	Count(ctx context.Context, userID string) (int64, error)
}
