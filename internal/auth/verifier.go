// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

// Package auth consumes credentials presented during the WebSocket
// handshake and resolves them to user identities.
//
// Token issuance lives in the main application; the relay only validates.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidCredential is returned for any credential the verifier cannot
// accept: expired, tampered, malformed, or empty.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the resolved owner of a connection.
type Identity struct {
	UserID   string
	Username string
}

// Verifier turns an opaque credential string into a user identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// StaticVerifier maps fixed credential strings to identities. Used in
// tests and local development.
type StaticVerifier map[string]Identity

// Verify implements Verifier.
func (v StaticVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	id, ok := v[credential]
	if !ok {
		return Identity{}, ErrInvalidCredential
	}
	return id, nil
}
