// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/pkg/errutil"
)

func TestMemoryLog_ReadAllSortsByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLogStore()
	log, err := store.Open(ctx, "lobby")
	require.NoError(t, err)

	require.NoError(t, log.Append(ctx, ChatMessage{ID: 3, Message: "c"}))
	require.NoError(t, log.Append(ctx, ChatMessage{ID: 1, Message: "a"}))
	require.NoError(t, log.Append(ctx, ChatMessage{ID: 2, Message: "b"}))

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestMemoryLog_ReadAllEmpty(t *testing.T) {
	ctx := context.Background()
	log, err := NewMemoryLogStore().Open(ctx, "empty")
	require.NoError(t, err)

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryLog_AppendSameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	log, err := NewMemoryLogStore().Open(ctx, "lobby")
	require.NoError(t, err)

	require.NoError(t, log.Append(ctx, ChatMessage{ID: 7, Message: "first"}))
	require.NoError(t, log.Append(ctx, ChatMessage{ID: 7, Message: "second"}))

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Message)
}

func TestMemoryLog_MergeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	log, err := NewMemoryLogStore().Open(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, ChatMessage{ID: 2, Message: "mine"}))

	added, err := log.Merge(ctx, []ChatMessage{
		{ID: 3, Message: "c"},
		{ID: 2, Message: "theirs"},
		{ID: 1, Message: "a"},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, int64(1), added[0].ID)
	assert.Equal(t, int64(3), added[1].ID)

	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "mine", msgs[1].Message)
}

func TestMemoryLogStore_OpenReturnsSameLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLogStore()

	a, err := store.Open(ctx, "lobby")
	require.NoError(t, err)
	b, err := store.Open(ctx, "lobby")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestMemoryLogStore_SurvivesClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLogStore()

	log, err := store.Open(ctx, "lobby")
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, ChatMessage{ID: 1, Message: "kept"}))
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	err = log.Append(ctx, ChatMessage{ID: 2})
	errutil.AssertErrorCode(t, err, CodeStorage)

	log, err = store.Open(ctx, "lobby")
	require.NoError(t, err)
	msgs, err := log.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemoryLogStore_FailOpen(t *testing.T) {
	store := NewMemoryLogStore()
	store.FailOpen = errors.New("disk full")

	_, err := store.Open(context.Background(), "lobby")
	errutil.AssertErrorCode(t, err, CodeStorage)
	errutil.AssertErrorContext(t, err, "room", "lobby")
}

func TestMemoryLog_CloseNil(t *testing.T) {
	var l *MemoryLog
	assert.NoError(t, l.Close())
}
