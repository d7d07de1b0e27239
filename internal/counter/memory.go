// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package counter

import (
	"context"
	"sync"
)

// MemoryService implements Service with an in-process map. It is not
// shared across processes, so it suits single-instance deployments and
// tests only.
type MemoryService struct {
	mu     sync.Mutex
	unread map[string]map[int64]struct{}
}

// NewMemoryService returns an empty in-memory counter service.
func NewMemoryService() *MemoryService {
	return &MemoryService{unread: make(map[string]map[int64]struct{})}
}

// MarkUnread implements Service.
func (s *MemoryService) MarkUnread(_ context.Context, userID string, notificationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.unread[userID]
	if !ok {
		set = make(map[int64]struct{})
		s.unread[userID] = set
	}
	set[notificationID] = struct{}{}
	return int64(len(set)), nil
}

// MarkRead implements Service.
func (s *MemoryService) MarkRead(_ context.Context, userID string, notificationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.unread[userID]
	if !ok {
		return 0, nil
	}
	delete(set, notificationID)
	if len(set) == 0 {
		delete(s.unread, userID)
		return 0, nil
	}
	return int64(len(set)), nil
}

// MarkAllRead implements Service.
func (s *MemoryService) MarkAllRead(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, userID)
	return nil
}

// Count implements Service.
func (s *MemoryService) Count(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.unread[userID])), nil
}

// Ping implements the health probe; an in-memory store is always up.
func (s *MemoryService) Ping(context.Context) error { return nil }
