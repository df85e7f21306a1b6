// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package peer

import (
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Directory holds the open connections of one room.
type Directory struct {
	mu    sync.RWMutex
	conns map[ulid.ULID]*Connection
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{conns: make(map[ulid.ULID]*Connection)}
}

// Add registers a connection.
func (d *Directory) Add(c *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[c.ID()] = c
}

// Remove unregisters a connection and reports whether it was present.
func (d *Directory) Remove(id ulid.ULID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[id]; !ok {
		return false
	}
	delete(d.conns, id)
	return true
}

// Count returns the number of registered connections.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// Snapshot returns the registered connections ordered by ID.
func (d *Directory) Snapshot() []*Connection {
	d.mu.RLock()
	out := make([]*Connection, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, c)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Connection) int { return a.ID().Compare(b.ID()) })
	return out
}

// Broadcast queues frame on every connection. Connections that cannot take
// the frame fail on their own; the returned errors are informational.
func (d *Directory) Broadcast(frame []byte) (delivered int, errs []error) {
	for _, c := range d.Snapshot() {
		if err := c.Send(frame); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errs
}

// CloseAll closes and unregisters every connection.
func (d *Directory) CloseAll() {
	d.mu.Lock()
	conns := make([]*Connection, 0, len(d.conns))
	for id, c := range d.conns {
		conns = append(conns, c)
		delete(d.conns, id)
	}
	d.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
