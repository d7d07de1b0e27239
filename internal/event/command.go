// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package event

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// CommandType tags an inbound client message.
type CommandType string

// Inbound command types accepted while a session is active.
const (
	CmdMarkRead       CommandType = "mark_read"
	CmdMarkAllRead    CommandType = "mark_all_read"
	CmdGetUnreadCount CommandType = "get_unread_count"
	CmdPing           CommandType = "ping"
)

// Command parse errors. Both map to an error event back to the sender;
// neither closes the connection.
var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command type")
)

// Command is a validated inbound client message.
type Command struct {
	Type           CommandType `json:"type"`
	NotificationID int64       `json:"notification_id,omitempty"`
}

// ParseCommand decodes and validates a raw inbound frame. It returns
// ErrMalformedCommand for invalid JSON or missing required fields, and
// ErrUnknownCommand for type values outside the closed command set.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch cmd.Type {
	case CmdMarkRead:
		if cmd.NotificationID <= 0 {
			return Command{}, fmt.Errorf("%w: mark_read requires notification_id", ErrMalformedCommand)
		}
	case CmdMarkAllRead, CmdGetUnreadCount, CmdPing:
		// No payload beyond the type tag.
	case "":
		return Command{}, fmt.Errorf("%w: missing type", ErrMalformedCommand)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}

	return cmd, nil
}
