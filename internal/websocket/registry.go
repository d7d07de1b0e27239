// SmartHunt Relay - Real-time Notification Delivery
// Copyright 2026 SmartHunt
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/smarthunt/relay

package websocket

import (
	"sort"
	"sync"

	"github.com/smarthunt/relay/internal/logging"
	"github.com/smarthunt/relay/internal/metrics"
)

// Registry tracks live sessions keyed by user ID. A user may appear with
// any number of concurrent sessions; an entry with zero sessions is
// removed so ConnectedUsers never reports ghosts.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Session]struct{})}
}

// Register adds a session under its user ID.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	set, ok := r.sessions[s.UserID()]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[s.UserID()] = set
	}
	set[s] = struct{}{}
	total := r.totalLocked()
	r.mu.Unlock()

	metrics.TrackConnection(true)
	logging.Info().
		Str("user_id", s.UserID()).
		Uint64("session_id", s.ID()).
		Int("total_sessions", total).
		Msg("session registered")
}

// Unregister removes a session. Calling it twice for the same session is
// safe; only the first call touches the gauge.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	set, ok := r.sessions[s.UserID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, present := set[s]; !present {
		r.mu.Unlock()
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, s.UserID())
	}
	total := r.totalLocked()
	r.mu.Unlock()

	metrics.TrackConnection(false)
	logging.Info().
		Str("user_id", s.UserID()).
		Uint64("session_id", s.ID()).
		Int("total_sessions", total).
		Msg("session unregistered")
}

// CountFor returns the number of live sessions for a user.
func (r *Registry) CountFor(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

// Total returns the number of live sessions across all users.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalLocked()
}

func (r *Registry) totalLocked() int {
	n := 0
	for _, set := range r.sessions {
		n += len(set)
	}
	return n
}

// ConnectedUsers returns the user IDs with at least one live session,
// sorted for stable diagnostics output.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// CloseAll closes every registered session with a going-away frame.
// Used during graceful shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Session, 0, r.totalLocked())
	for _, set := range r.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })

	for _, s := range all {
		s.CloseGoingAway()
	}
	logging.Info().Int("sessions_closed", len(all)).Msg("closed all sessions during shutdown")
}
