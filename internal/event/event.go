// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package event defines the closed wire schema exchanged over notification
// sockets and the shared broker.
//
// Every message in either direction is a single flat JSON object whose
// "type" field dictates the remaining shape. Outgoing events are modeled as
// one struct per type implementing the Event interface; incoming client
// messages are Commands (see command.go). Unknown types are a first-class
// error path, never silent.
package event

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type tags an event on the wire.
type Type string

// Outgoing event types. The set is closed: the relay rejects anything else
// at the publisher boundary.
const (
	TypeConnectionEstablished Type = "connection_established"
	TypeNotification          Type = "notification"
	TypeChatMessage           Type = "chat_message"
	TypeBookingUpdate         Type = "booking_update"
	TypeUnreadCount           Type = "unread_count"
	TypePong                  Type = "pong"
	TypeError                 Type = "error"
)

// ErrUnknownType is returned when a wire object carries a type outside the
// closed set.
var ErrUnknownType = fmt.Errorf("unknown event type")

// Valid reports whether t is a member of the closed outgoing set.
func (t Type) Valid() bool {
	switch t {
	case TypeConnectionEstablished, TypeNotification, TypeChatMessage,
		TypeBookingUpdate, TypeUnreadCount, TypePong, TypeError:
		return true
	}
	return false
}

// Deliverable reports whether external collaborators may hand events of
// this type to the publisher. Session-originated types
// (connection_established, unread_count, pong, error) are excluded.
func (t Type) Deliverable() bool {
	switch t {
	case TypeNotification, TypeChatMessage, TypeBookingUpdate:
		return true
	}
	return false
}

// Event is implemented by every outgoing payload struct.
type Event interface {
	EventType() Type
}

// ConnectionEstablished is emitted once per session, immediately after a
// successful handshake and before any other event.
type ConnectionEstablished struct {
	Type      Type   `json:"type"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// EventType implements Event.
func (ConnectionEstablished) EventType() Type { return TypeConnectionEstablished }

// Notification is a persistent user-facing notification. Delivering one
// increments the recipient's unread counter before publication.
type Notification struct {
	Type             Type           `json:"type" validate:"required"`
	Title            string         `json:"title" validate:"required"`
	Body             string         `json:"body"`
	NotificationType string         `json:"notification_type"`
	Data             map[string]any `json:"data,omitempty"`
	NotificationID   int64          `json:"notification_id" validate:"required,gt=0"`
	Timestamp        string         `json:"timestamp"`
}

// EventType implements Event.
func (Notification) EventType() Type { return TypeNotification }

// ChatMessage carries a direct message between two users, optionally tied
// to a property listing.
type ChatMessage struct {
	Type        Type   `json:"type" validate:"required"`
	MessageID   int64  `json:"message_id" validate:"required,gt=0"`
	SenderID    string `json:"sender_id" validate:"required"`
	SenderName  string `json:"sender_name"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Timestamp   string `json:"timestamp"`
	PropertyID  int64  `json:"property_id,omitempty"`
}

// EventType implements Event.
func (ChatMessage) EventType() Type { return TypeChatMessage }

// BookingUpdate notifies tenant and landlord of a booking workflow change.
type BookingUpdate struct {
	Type          Type   `json:"type" validate:"required"`
	BookingID     int64  `json:"booking_id" validate:"required,gt=0"`
	Action        string `json:"action" validate:"required"`
	Status        string `json:"status" validate:"required"`
	PropertyID    int64  `json:"property_id"`
	PropertyTitle string `json:"property_title"`
	TenantID      string `json:"tenant_id"`
	LandlordID    string `json:"landlord_id"`
	Timestamp     string `json:"timestamp"`
}

// EventType implements Event.
func (BookingUpdate) EventType() Type { return TypeBookingUpdate }

// UnreadCount is a snapshot of the user's unread notification counter.
type UnreadCount struct {
	Type  Type  `json:"type"`
	Count int64 `json:"count"`
}

// EventType implements Event.
func (UnreadCount) EventType() Type { return TypeUnreadCount }

// Pong answers a client ping command.
type Pong struct {
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
}

// EventType implements Event.
func (Pong) EventType() Type { return TypePong }

// ErrorEvent reports a protocol violation back to the sender. The
// connection stays open.
type ErrorEvent struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// EventType implements Event.
func (ErrorEvent) EventType() Type { return TypeError }

// NewConnectionEstablished builds the handshake confirmation event.
func NewConnectionEstablished(userID, username string) ConnectionEstablished {
	return ConnectionEstablished{
		Type:      TypeConnectionEstablished,
		UserID:    userID,
		Username:  username,
		Timestamp: now(),
	}
}

// NewNotification builds a notification event.
func NewNotification(title, body, notificationType string, data map[string]any, notificationID int64) Notification {
	return Notification{
		Type:             TypeNotification,
		Title:            title,
		Body:             body,
		NotificationType: notificationType,
		Data:             data,
		NotificationID:   notificationID,
		Timestamp:        now(),
	}
}

// NewUnreadCount builds an unread counter snapshot event.
func NewUnreadCount(count int64) UnreadCount {
	return UnreadCount{Type: TypeUnreadCount, Count: count}
}

// NewPong builds a pong event with the current timestamp.
func NewPong() Pong {
	return Pong{Type: TypePong, Timestamp: now()}
}

// NewError builds an error event.
func NewError(message, code string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message, Code: code}
}

// Marshal serializes an event for the wire.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.EventType(), err)
	}
	return data, nil
}

// PeekType extracts the type tag from a wire object without decoding the
// full payload. Used on the forwarding path to decide whether an unread
// counter refresh should follow.
func PeekType(data []byte) (Type, error) {
	var tag struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return "", fmt.Errorf("peek event type: %w", err)
	}
	if !tag.Type.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, tag.Type)
	}
	return tag.Type, nil
}

// FromWire decodes an externally supplied wire object into its concrete
// event struct. Only deliverable types are accepted; everything else is an
// ErrUnknownType at call time, not a silent drop.
func FromWire(data []byte) (Event, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	if !t.Deliverable() {
		return nil, fmt.Errorf("%w: %q is not deliverable", ErrUnknownType, t)
	}

	switch t {
	case TypeNotification:
		var ev Notification
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		if ev.Timestamp == "" {
			ev.Timestamp = now()
		}
		return ev, nil
	case TypeChatMessage:
		var ev ChatMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode chat_message: %w", err)
		}
		if ev.Timestamp == "" {
			ev.Timestamp = now()
		}
		return ev, nil
	case TypeBookingUpdate:
		var ev BookingUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode booking_update: %w", err)
		}
		if ev.Timestamp == "" {
			ev.Timestamp = now()
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// now returns the canonical wire timestamp format.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
