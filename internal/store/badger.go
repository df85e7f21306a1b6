// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package store persists per-room message logs in BadgerDB.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// keyPrefix precedes the decimal message ID in every key.
const keyPrefix = "msg-"

// Options configures a BadgerStore.
type Options struct {
	// Dir is the root directory. Each room gets <Dir>/rooms/<room>-messages.
	Dir string
	// InMemory keeps every log in memory. Dir is ignored.
	InMemory bool
	// Logger receives badger's internal log output at debug level and above.
	Logger *slog.Logger
}

// BadgerStore opens one badger database per room.
type BadgerStore struct {
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	open map[string]*BadgerLog
}

var _ core.LogStore = (*BadgerStore)(nil)

// NewBadgerStore creates a store rooted at opts.Dir.
func NewBadgerStore(opts Options) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, oops.Code(core.CodeStorage).Errorf("log directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{
		opts: opts,
		log:  logger.With("component", "store"),
		open: make(map[string]*BadgerLog),
	}, nil
}

// RoomDir returns the directory holding a room's log.
func (s *BadgerStore) RoomDir(room string) string {
	return filepath.Join(s.opts.Dir, "rooms", url.PathEscape(room)+"-messages")
}

// Open returns the room's log, opening the database on first use.
func (s *BadgerStore) Open(ctx context.Context, room string) (core.MessageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.open[room]; ok {
		return l, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.Code(core.CodeStorage).With("room", room).Wrap(err)
	}

	var bopts badger.Options
	if s.opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := s.RoomDir(room)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, oops.Code(core.CodeStorage).With("room", room).With("dir", dir).Wrap(err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithLogger(&badgerLogger{log: s.log.With("room", room)})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, oops.Code(core.CodeStorage).With("room", room).Wrapf(err, "open message log")
	}

	l := &BadgerLog{room: room, db: db, store: s}
	s.open[room] = l
	s.log.Debug("message log opened", "room", room)
	return l, nil
}

// Close closes every open log.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	logs := make([]*BadgerLog, 0, len(s.open))
	for _, l := range s.open {
		logs = append(logs, l)
	}
	s.mu.Unlock()

	var errs []error
	for _, l := range logs {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return oops.Code(core.CodeStorage).Join(errs...)
	}
	return nil
}

func (s *BadgerStore) forget(l *BadgerLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[l.room] == l {
		delete(s.open, l.room)
	}
}

// BadgerLog is one room's message log. Keys are "msg-<id>", values are the
// JSON encoding of core.ChatMessage.
type BadgerLog struct {
	room  string
	db    *badger.DB
	store *BadgerStore

	closeOnce sync.Once
	closeErr  error
}

var _ core.MessageLog = (*BadgerLog)(nil)

func messageKey(id int64) []byte {
	return []byte(keyPrefix + strconv.FormatInt(id, 10))
}

func (l *BadgerLog) storageErr() oops.OopsErrorBuilder {
	return oops.Code(core.CodeStorage).With("room", l.room)
}

// Append writes msg, overwriting an existing message with the same ID.
func (l *BadgerLog) Append(_ context.Context, msg core.ChatMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return l.storageErr().With("id", msg.ID).Wrap(err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), value)
	})
	if err != nil {
		return l.storageErr().With("id", msg.ID).Wrapf(err, "append message")
	}
	return nil
}

// Merge writes the messages whose keys are absent in a single transaction.
func (l *BadgerLog) Merge(_ context.Context, msgs []core.ChatMessage) ([]core.ChatMessage, error) {
	var added []core.ChatMessage
	err := l.db.Update(func(txn *badger.Txn) error {
		added = added[:0]
		seen := make(map[int64]struct{}, len(msgs))
		for _, m := range msgs {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}

			key := messageKey(m.ID)
			_, err := txn.Get(key)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			value, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
			added = append(added, m)
		}
		return nil
	})
	if err != nil {
		return nil, l.storageErr().With("count", len(msgs)).Wrapf(err, "merge history")
	}
	core.SortMessages(added)
	return added, nil
}

// ReadAll scans every message and returns them sorted by ID.
func (l *BadgerLog) ReadAll(_ context.Context) ([]core.ChatMessage, error) {
	var out []core.ChatMessage
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				var m core.ChatMessage
				if err := json.Unmarshal(value, &m); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				out = append(out, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, l.storageErr().Wrapf(err, "read messages")
	}
	core.SortMessages(out)
	return out, nil
}

// Close closes the database and releases the room so a later Open reopens
// it.
func (l *BadgerLog) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.store.forget(l)
		if err := l.db.Close(); err != nil {
			l.closeErr = l.storageErr().Wrapf(err, "close message log")
		}
	})
	return l.closeErr
}

// badgerLogger forwards badger's printf-style logging to slog.
type badgerLogger struct {
	log *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.log.Error(clean(format, args))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.log.Warn(clean(format, args))
}

// Badger is chatty at info level; it is demoted to debug.
func (b *badgerLogger) Infof(format string, args ...any) {
	b.log.Debug(clean(format, args))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.log.Debug(clean(format, args))
}

func clean(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
