// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package chat

import (
	"sync"
	"time"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
	"github.com/peerchat/peerchat/internal/peer"
	"github.com/peerchat/peerchat/internal/topic"
)

// roomState is the lifecycle stage of a room. Unjoined rooms are simply
// absent from the engine.
type roomState int

const (
	stateJoining roomState = iota
	stateJoined
	stateLeaving
)

func (s roomState) String() string {
	switch s {
	case stateJoining:
		return "joining"
	case stateJoined:
		return "joined"
	case stateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// room owns everything tied to one joined room: its log, its overlay
// membership and its peer connections.
type room struct {
	name     string
	topic    topic.Topic
	peers    *peer.Directory
	joinedAt time.Time

	// ready is closed when the join attempt finishes; joinErr holds its
	// outcome.
	ready   chan struct{}
	joinErr error

	// left is closed once a leave has torn the room down and removed it
	// from the engine.
	left chan struct{}

	mu         sync.Mutex
	state      roomState
	log        core.MessageLog
	membership overlay.Membership
}

func newRoom(name string) *room {
	return &room{
		name:  name,
		topic: topic.For(name),
		peers: peer.NewDirectory(),
		ready: make(chan struct{}),
		left:  make(chan struct{}),
		state: stateJoining,
	}
}

func (r *room) getState() roomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// messageLog returns the log while the room is not leaving.
func (r *room) messageLog() (core.MessageLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateLeaving || r.log == nil {
		return nil, false
	}
	return r.log, true
}

func (r *room) handle() core.RoomHandle {
	return core.RoomHandle{Name: r.name, Topic: r.topic.String(), JoinedAt: r.joinedAt}
}
