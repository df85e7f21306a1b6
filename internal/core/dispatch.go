// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"sync"
)

// MessageHandler receives messages stored in a room.
type MessageHandler func(msg ChatMessage)

// RoomUpdateHandler receives the full room status list after any change.
type RoomUpdateHandler func(rooms []RoomStatus)

// Dispatcher routes engine events to host callbacks. Each room has at most
// one message handler; room updates go to every subscriber. Handlers run on
// the caller's goroutine and are never invoked with the dispatcher lock held.
type Dispatcher struct {
	mu       sync.RWMutex
	messages map[string]MessageHandler
	updates  map[uint64]RoomUpdateHandler
	nextID   uint64
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		messages: make(map[string]MessageHandler),
		updates:  make(map[uint64]RoomUpdateHandler),
	}
}

// SetMessageHandler installs the message handler for a room, replacing any
// previous one. A nil handler removes it.
func (d *Dispatcher) SetMessageHandler(room string, fn MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.messages, room)
		return
	}
	d.messages[room] = fn
}

// AddRoomUpdateHandler subscribes fn to room updates. The returned function
// unsubscribes it.
func (d *Dispatcher) AddRoomUpdateHandler(fn RoomUpdateHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.updates[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.updates, id)
			d.mu.Unlock()
		})
	}
}

// DispatchMessage invokes the room's handler, if any.
func (d *Dispatcher) DispatchMessage(room string, msg ChatMessage) {
	d.mu.RLock()
	fn := d.messages[room]
	d.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

// DispatchRoomUpdate invokes every room update handler.
func (d *Dispatcher) DispatchRoomUpdate(rooms []RoomStatus) {
	d.mu.RLock()
	fns := make([]RoomUpdateHandler, 0, len(d.updates))
	for _, fn := range d.updates {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(rooms)
	}
}
