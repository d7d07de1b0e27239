// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package websocket manages authenticated client sessions and the
// per-user delivery path from the shared broker to each connection.
//
// A Session owns three goroutines: readPump consumes client commands,
// writePump serialises all frames onto the wire, and forwardPump moves
// events from the broker subscription into the send queue. All teardown
// funnels through a single sync.Once so the pumps can fail in any order
// without double-closing the connection or leaking the subscription.
//
// The Registry tracks live sessions per user. A user may hold several
// concurrent sessions (multiple tabs or devices); each receives every
// event published to that user's group independently.
package websocket
