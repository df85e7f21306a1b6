// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

// Error codes attached to oops errors returned by the chat engine and its
// collaborators.
const (
	// CodeStorage marks a message log I/O failure. Fatal to a join.
	CodeStorage = "STORAGE_ERROR"
	// CodeTransport marks a failed write or read on a peer connection. The
	// peer is dropped; other peers are unaffected.
	CodeTransport = "TRANSPORT_ERROR"
	// CodeProtocol marks a malformed or unknown inbound envelope. The frame is
	// discarded.
	CodeProtocol = "PROTOCOL_ERROR"
	// CodeOverlay marks a failure to join or leave the overlay for a topic.
	CodeOverlay = "OVERLAY_ERROR"

	CodeRoomNotJoined  = "ROOM_NOT_JOINED"
	CodeRoomNotAllowed = "ROOM_NOT_ALLOWED"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeEngineClosed   = "ENGINE_CLOSED"
)
