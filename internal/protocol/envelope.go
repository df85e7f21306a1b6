// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package protocol defines the JSON envelopes exchanged between peers of a
// room and their newline-delimited framing.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// Type discriminates envelopes.
type Type string

// Envelope types.
const (
	TypeChat           Type = "chat"
	TypeRequestHistory Type = "request_history"
	TypeHistoryChunk   Type = "history_chunk"
	TypeRoomInfo       Type = "room_info"
)

// DefaultChunkSize is the number of messages per history_chunk.
const DefaultChunkSize = 10

// Envelope is the raw wire form of every frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HistoryChunk is the payload of a history_chunk envelope.
type HistoryChunk struct {
	Messages []core.ChatMessage `json:"messages"`
	IsLast   bool               `json:"isLast"`
}

// RoomInfo is the payload of a room_info envelope.
type RoomInfo struct {
	Room  string `json:"room"`
	Users int    `json:"users"`
}

// Frame is a decoded envelope. Exactly one payload field is set for types
// that carry data.
type Frame struct {
	Type  Type
	Chat  *core.ChatMessage
	Chunk *HistoryChunk
	Info  *RoomInfo
}

func encode(t Type, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, oops.Code(core.CodeProtocol).With("type", t).Wrap(err)
		}
		env.Data = data
	}
	line, err := json.Marshal(env)
	if err != nil {
		return nil, oops.Code(core.CodeProtocol).With("type", t).Wrap(err)
	}
	return append(line, '\n'), nil
}

// EncodeChat frames a chat message.
func EncodeChat(msg core.ChatMessage) ([]byte, error) {
	return encode(TypeChat, msg)
}

// EncodeRequestHistory frames a history request.
func EncodeRequestHistory() ([]byte, error) {
	return encode(TypeRequestHistory, nil)
}

// EncodeHistoryChunk frames one history chunk.
func EncodeHistoryChunk(chunk HistoryChunk) ([]byte, error) {
	if chunk.Messages == nil {
		chunk.Messages = []core.ChatMessage{}
	}
	return encode(TypeHistoryChunk, chunk)
}

// EncodeRoomInfo frames a presence notice.
func EncodeRoomInfo(info RoomInfo) ([]byte, error) {
	return encode(TypeRoomInfo, info)
}

// Decode validates one frame against the envelope schema and decodes its
// payload. Failures carry the PROTOCOL_ERROR code.
func Decode(line []byte) (Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{}, oops.Code(core.CodeProtocol).Errorf("empty frame")
	}
	if err := Validate(line); err != nil {
		return Frame{}, err
	}

	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Frame{}, oops.Code(core.CodeProtocol).Wrapf(err, "decode envelope")
	}

	f := Frame{Type: env.Type}
	var target any
	switch env.Type {
	case TypeChat:
		f.Chat = &core.ChatMessage{}
		target = f.Chat
	case TypeHistoryChunk:
		f.Chunk = &HistoryChunk{}
		target = f.Chunk
	case TypeRoomInfo:
		f.Info = &RoomInfo{}
		target = f.Info
	case TypeRequestHistory:
		return f, nil
	default:
		return Frame{}, oops.Code(core.CodeProtocol).With("type", env.Type).Errorf("unknown envelope type")
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return Frame{}, oops.Code(core.CodeProtocol).With("type", env.Type).Wrapf(err, "decode payload")
	}
	return f, nil
}
