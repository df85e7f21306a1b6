// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/internal/core"
)

func messages(n int) []core.ChatMessage {
	out := make([]core.ChatMessage, n)
	for i := range out {
		out[i] = core.ChatMessage{ID: int64(i + 1), Name: "n", Message: "m", Timestamp: "t"}
	}
	return out
}

func TestHistoryChunks_TwentyFiveMessages(t *testing.T) {
	chunks := HistoryChunks(messages(25), DefaultChunkSize)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Messages, 10)
	assert.Len(t, chunks[1].Messages, 10)
	assert.Len(t, chunks[2].Messages, 5)
	assert.False(t, chunks[0].IsLast)
	assert.False(t, chunks[1].IsLast)
	assert.True(t, chunks[2].IsLast)
	assert.Equal(t, int64(11), chunks[1].Messages[0].ID)
}

func TestHistoryChunks_ExactMultiple(t *testing.T) {
	chunks := HistoryChunks(messages(20), 10)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[1].IsLast)
	assert.Len(t, chunks[1].Messages, 10)
}

func TestHistoryChunks_EmptyLogSendsFinalEmptyChunk(t *testing.T) {
	chunks := HistoryChunks(nil, 10)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsLast)
	assert.NotNil(t, chunks[0].Messages)
	assert.Empty(t, chunks[0].Messages)
}

func TestHistoryChunks_NonPositiveSizeUsesDefault(t *testing.T) {
	chunks := HistoryChunks(messages(11), 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Messages, DefaultChunkSize)
}
