// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package protocol

import (
	"github.com/samber/lo"

	"github.com/peerchat/peerchat/internal/core"
)

// HistoryChunks splits a log into chunks of at most size messages. The last
// chunk is flagged IsLast. An empty log yields one empty final chunk so the
// requester can finish waiting.
func HistoryChunks(msgs []core.ChatMessage, size int) []HistoryChunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(msgs) == 0 {
		return []HistoryChunk{{Messages: []core.ChatMessage{}, IsLast: true}}
	}

	parts := lo.Chunk(msgs, size)
	return lo.Map(parts, func(part []core.ChatMessage, i int) HistoryChunk {
		return HistoryChunk{Messages: part, IsLast: i == len(parts)-1}
	})
}
