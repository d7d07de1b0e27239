// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}
	return v
}

func TestNewJWTVerifierRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTVerifier("too-short"); err == nil {
		t.Error("expected error for short secret")
	}
	if _, err := NewJWTVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.GenerateToken(Identity{UserID: "user-42", Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", identity.UserID)
	}
	if identity.Username != "alice" {
		t.Errorf("Username = %q, want alice", identity.Username)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := newTestVerifier(t)

	_, err := v.Verify(context.Background(), "")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.GenerateToken(Identity{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	_, err = v.Verify(context.Background(), token)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for expired token, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	other, err := NewJWTVerifier("another-secret-key-at-least-32-chars!!")
	if err != nil {
		t.Fatalf("NewJWTVerifier failed: %v", err)
	}
	token, err := other.GenerateToken(Identity{UserID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	v := newTestVerifier(t)
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for wrong secret, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	v := newTestVerifier(t)

	for _, token := range []string{"not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9"} {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Verify(%q): expected ErrInvalidCredential, got %v", token, err)
		}
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	v := newTestVerifier(t)

	// alg=none token, signature stripped. Must never validate.
	claims := &Claims{UserID: "user-1"}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing unsigned token failed: %v", err)
	}

	if _, err := v.Verify(context.Background(), unsigned); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for alg=none, got %v", err)
	}
}

func TestVerifyMissingUserID(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.GenerateToken(Identity{Username: "no-id"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential for missing user_id, got %v", err)
	}
}
