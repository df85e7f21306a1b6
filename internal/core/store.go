// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/oops"
)

// MessageLog is the durable, append-only message history of one room.
type MessageLog interface {
	// Append stores a message under its ID.
	Append(ctx context.Context, msg ChatMessage) error

	// Merge stores every message whose ID is not yet present and returns the
	// newly stored messages in ascending ID order.
	Merge(ctx context.Context, msgs []ChatMessage) ([]ChatMessage, error)

	// ReadAll returns every stored message in ascending ID order.
	ReadAll(ctx context.Context) ([]ChatMessage, error)

	// Close releases the log. Closing twice is a no-op.
	Close() error
}

// LogStore opens per-room message logs.
type LogStore interface {
	// Open returns the log for a room, creating it if needed. While a log is
	// open, further calls for the same room return the same handle.
	Open(ctx context.Context, room string) (MessageLog, error)
}

// SortMessages orders messages by ID. Messages sharing an ID keep their
// relative order.
func SortMessages(msgs []ChatMessage) {
	slices.SortStableFunc(msgs, func(a, b ChatMessage) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

// MemoryLogStore is an in-memory LogStore for testing. Contents survive
// Close, mirroring an on-disk log.
type MemoryLogStore struct {
	mu   sync.Mutex
	logs map[string]*MemoryLog

	// FailOpen, when set, is returned by Open.
	FailOpen error
}

// NewMemoryLogStore creates an empty in-memory log store.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{logs: make(map[string]*MemoryLog)}
}

// Open returns the room's log, reopening it if it was closed.
func (s *MemoryLogStore) Open(_ context.Context, room string) (MessageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailOpen != nil {
		return nil, oops.Code(CodeStorage).With("room", room).Wrap(s.FailOpen)
	}
	l, ok := s.logs[room]
	if !ok {
		l = &MemoryLog{room: room, byID: make(map[int64]ChatMessage)}
		s.logs[room] = l
	}
	l.mu.Lock()
	l.closed = false
	l.opens++
	l.mu.Unlock()
	return l, nil
}

// Log returns the room's log without opening it, or nil.
func (s *MemoryLogStore) Log(room string) *MemoryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[room]
}

// MemoryLog is the MessageLog behind MemoryLogStore.
type MemoryLog struct {
	mu     sync.Mutex
	room   string
	byID   map[int64]ChatMessage
	order  []ChatMessage
	closed bool
	opens  int
}

// Append stores msg, replacing any message with the same ID.
func (l *MemoryLog) Append(_ context.Context, msg ChatMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return oops.Code(CodeStorage).With("room", l.room).Errorf("log closed")
	}
	l.put(msg)
	return nil
}

// Merge stores messages whose IDs are absent.
func (l *MemoryLog) Merge(_ context.Context, msgs []ChatMessage) ([]ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, oops.Code(CodeStorage).With("room", l.room).Errorf("log closed")
	}
	var added []ChatMessage
	for _, m := range msgs {
		if _, ok := l.byID[m.ID]; ok {
			continue
		}
		l.put(m)
		added = append(added, m)
	}
	SortMessages(added)
	return added, nil
}

func (l *MemoryLog) put(msg ChatMessage) {
	if _, ok := l.byID[msg.ID]; ok {
		for i := range l.order {
			if l.order[i].ID == msg.ID {
				l.order[i] = msg
				break
			}
		}
	} else {
		l.order = append(l.order, msg)
	}
	l.byID[msg.ID] = msg
}

// ReadAll returns a sorted copy of the log.
func (l *MemoryLog) ReadAll(_ context.Context) ([]ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, oops.Code(CodeStorage).With("room", l.room).Errorf("log closed")
	}
	out := slices.Clone(l.order)
	SortMessages(out)
	return out, nil
}

// Close marks the log closed.
func (l *MemoryLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Closed reports whether the log is closed.
func (l *MemoryLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Opens reports how many times the log has been opened.
func (l *MemoryLog) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Len returns the number of stored messages.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
