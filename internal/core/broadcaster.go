// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"log/slog"
	"sync"
)

// EventKind identifies what a frontend event carries.
type EventKind string

const (
	// EventMessage carries a stored chat message.
	EventMessage EventKind = "message"
	// EventRooms carries the room status list.
	EventRooms EventKind = "rooms"
)

// AllRooms is the stream that receives every event regardless of room.
const AllRooms = "*"

// Event is delivered to local frontends subscribed through a Broadcaster.
type Event struct {
	Kind    EventKind    `json:"type"`
	Room    string       `json:"room,omitempty"`
	Message *ChatMessage `json:"data,omitempty"`
	Rooms   []RoomStatus `json:"rooms,omitempty"`
}

// Broadcaster fans engine events out to many local frontends. The engine
// keeps a single message handler per room; frontends share it through here.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	buffer int
	log    *slog.Logger
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer
// events each.
func NewBroadcaster(buffer int, log *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[string][]chan Event),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe creates a channel receiving events for a room, or for every room
// when stream is AllRooms.
func (b *Broadcaster) Subscribe(stream string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	b.subs[stream] = append(b.subs[stream], ch)
	return ch
}

// Unsubscribe removes and closes a channel.
func (b *Broadcaster) Unsubscribe(stream string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[stream]
	for i, sub := range subs {
		if sub == ch {
			b.subs[stream] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[stream]) == 0 {
				delete(b.subs, stream)
			}
			close(ch)
			return
		}
	}
}

// PublishMessage delivers a room message. It has the MessageHandler shape
// once bound to a room.
func (b *Broadcaster) PublishMessage(room string, msg ChatMessage) {
	b.Broadcast(Event{Kind: EventMessage, Room: room, Message: &msg})
}

// PublishRooms delivers a room status update to AllRooms subscribers.
func (b *Broadcaster) PublishRooms(rooms []RoomStatus) {
	b.Broadcast(Event{Kind: EventRooms, Rooms: rooms})
}

// Broadcast sends an event to the subscribers of its room and of AllRooms.
// Subscribers with a full buffer miss the event.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subs[AllRooms], event)
	if event.Room != "" && event.Room != AllRooms {
		b.deliver(b.subs[event.Room], event)
	}
}

func (b *Broadcaster) deliver(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			b.log.Warn("event dropped: subscriber buffer full",
				"room", event.Room,
				"event_type", event.Kind,
			)
		}
	}
}
