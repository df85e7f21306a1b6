// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/pkg/errutil"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(Options{
		Dir:    t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewBadgerStore_RequiresDir(t *testing.T) {
	_, err := NewBadgerStore(Options{})
	errutil.AssertErrorCode(t, err, core.CodeStorage)
}

func TestBadgerLog_RoundTripSortedByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	log, err := s.Open(ctx, "lobby")
	require.NoError(t, err)

	// Keys are not zero padded, so lexical order (10 < 9) differs from ID order.
	for _, id := range []int64{10, 9, 100, 1} {
		require.NoError(t, log.Append(ctx, core.ChatMessage{ID: id, Name: "alice", Message: "m"}))
	}

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{1, 9, 10, 100}, ids)
}

func TestBadgerLog_EmptyLog(t *testing.T) {
	ctx := context.Background()
	log, err := newTestStore(t).Open(ctx, "quiet")
	require.NoError(t, err)

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBadgerStore_OpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Open(ctx, "lobby")
	require.NoError(t, err)
	b, err := s.Open(ctx, "lobby")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestBadgerStore_CreatesRoomDirectory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Open(context.Background(), "general/chat")
	require.NoError(t, err)

	info, err := os.Stat(s.RoomDir("general/chat"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, s.RoomDir("general/chat"), "general%2Fchat-messages")
}

func TestBadgerLog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	log, err := s.Open(ctx, "lobby")
	require.NoError(t, err)
	want := core.ChatMessage{ID: 5, Name: "bob", Message: "still here", Timestamp: "2026-01-01T00:00:00.000Z"}
	require.NoError(t, log.Append(ctx, want))
	require.NoError(t, log.Close())
	require.NoError(t, log.Close(), "second close is a no-op")

	reopened, err := s.Open(ctx, "lobby")
	require.NoError(t, err)
	assert.NotSame(t, log, reopened)

	msgs, err := reopened.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ChatMessage{want}, msgs)
}

func TestBadgerLog_MergeOnlyAddsAbsent(t *testing.T) {
	ctx := context.Background()
	log, err := newTestStore(t).Open(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, core.ChatMessage{ID: 2, Message: "local"}))

	added, err := log.Merge(ctx, []core.ChatMessage{
		{ID: 3, Message: "c"},
		{ID: 2, Message: "remote"},
		{ID: 1, Message: "a"},
		{ID: 3, Message: "c again"},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, int64(1), added[0].ID)
	assert.Equal(t, int64(3), added[1].ID)
	assert.Equal(t, "c", added[1].Message)

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "local", msgs[1].Message)
}

func TestBadgerLog_AppendAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	log, err := newTestStore(t).Open(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, log.Close())

	err = log.Append(ctx, core.ChatMessage{ID: 1})
	errutil.AssertErrorCode(t, err, core.CodeStorage)
	errutil.AssertErrorContext(t, err, "room", "lobby")
}

func TestBadgerStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := NewBadgerStore(Options{InMemory: true, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log, err := s.Open(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, core.ChatMessage{ID: 1, Message: "x"}))

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestBadgerStore_OpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestStore(t).Open(ctx, "lobby")
	errutil.AssertErrorCode(t, err, core.CodeStorage)
}

func TestBadgerLog_CloseNil(t *testing.T) {
	var l *BadgerLog
	assert.NoError(t, l.Close())
}
