// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package core contains the chat domain types shared by the engine, the
// message log backends and the local frontends.
package core

import (
	"sync"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for ChatMessage.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SystemName is the sender name used for engine-generated messages.
const SystemName = "System"

// MaxMessageID is the largest accepted message ID: the last millisecond of
// year 9999.
const MaxMessageID int64 = 253402300799999

// ChatMessage is a single chat line. It is the unit stored in the message log
// and carried on the wire.
type ChatMessage struct {
	ID        int64  `json:"id" jsonschema:"minimum=0,maximum=253402300799999"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MessageInput is what a frontend submits to send a message. Zero fields are
// filled in by the engine.
type MessageInput struct {
	ID        int64  `json:"id,omitempty" validate:"gte=0,lte=253402300799999"`
	Name      string `json:"name,omitempty" validate:"max=64"`
	Message   string `json:"message" validate:"required,max=4096"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RoomStatus is the presence view of a joined room.
type RoomStatus struct {
	Room           string `json:"room"`
	Users          int    `json:"users"`
	HasNewMessages bool   `json:"hasNewMessages"`
}

// RoomHandle identifies a joined room to the caller.
type RoomHandle struct {
	Name     string    `json:"name"`
	Topic    string    `json:"topic"`
	JoinedAt time.Time `json:"joinedAt"`
}

// FormatTimestamp renders t in TimestampLayout, always in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// IDGenerator hands out millisecond-derived message IDs that never repeat or
// go backwards within a process.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates an IDGenerator reading the given clock. A nil clock
// uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns the next message ID.
func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe advances the generator past an ID seen from a peer so local
// messages sort after everything already in the log. IDs above MaxMessageID
// are ignored.
func (g *IDGenerator) Observe(id int64) {
	if id > MaxMessageID {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id > g.last {
		g.last = id
	}
}
