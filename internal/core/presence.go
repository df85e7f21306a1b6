// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"slices"
	"strings"
	"sync"
)

// PresenceTracker keeps the user count and unseen-message flag of every
// joined room. The local user always counts, so a joined room never reports
// fewer than one user.
type PresenceTracker struct {
	mu    sync.RWMutex
	rooms map[string]*RoomStatus
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[string]*RoomStatus)}
}

// Join starts tracking a room with the local user only. Joining a tracked
// room leaves its state untouched.
func (p *PresenceTracker) Join(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rooms[room]; ok {
		return
	}
	p.rooms[room] = &RoomStatus{Room: room, Users: 1}
}

// Leave stops tracking a room.
func (p *PresenceTracker) Leave(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, room)
}

// PeerConnected counts one more user. Untracked rooms are ignored.
func (p *PresenceTracker) PeerConnected(room string) {
	p.update(room, func(s *RoomStatus) { s.Users++ })
}

// PeerDisconnected counts one less user, never going below one.
func (p *PresenceTracker) PeerDisconnected(room string) {
	p.update(room, func(s *RoomStatus) {
		if s.Users > 1 {
			s.Users--
		}
	})
}

// MarkNew flags the room as having unseen messages.
func (p *PresenceTracker) MarkNew(room string) {
	p.update(room, func(s *RoomStatus) { s.HasNewMessages = true })
}

// MarkRead clears the unseen-messages flag.
func (p *PresenceTracker) MarkRead(room string) {
	p.update(room, func(s *RoomStatus) { s.HasNewMessages = false })
}

func (p *PresenceTracker) update(room string, fn func(*RoomStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.rooms[room]; ok {
		fn(s)
	}
}

// Get returns the status of one room.
func (p *PresenceTracker) Get(room string) (RoomStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.rooms[room]
	if !ok {
		return RoomStatus{}, false
	}
	return *s, true
}

// Snapshot returns the status of every tracked room, ordered by name.
func (p *PresenceTracker) Snapshot() []RoomStatus {
	p.mu.RLock()
	out := make([]RoomStatus, 0, len(p.rooms))
	for _, s := range p.rooms {
		out = append(out, *s)
	}
	p.mu.RUnlock()

	slices.SortFunc(out, func(a, b RoomStatus) int { return strings.Compare(a.Room, b.Room) })
	return out
}
