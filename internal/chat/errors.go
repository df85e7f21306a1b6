// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package chat

import (
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// ErrRoomNotJoined creates an error for an operation on a room that is not
// joined.
func ErrRoomNotJoined(room string) error {
	return oops.Code(core.CodeRoomNotJoined).
		With("room", room).
		Errorf("room %q is not joined", room)
}

// ErrRoomNotAllowed creates an error for a room rejected by the allow list.
func ErrRoomNotAllowed(room string) error {
	return oops.Code(core.CodeRoomNotAllowed).
		With("room", room).
		Errorf("room %q is not allowed", room)
}

// ErrInvalidMessage creates an error for a message that fails validation.
func ErrInvalidMessage(room string, cause error) error {
	builder := oops.Code(core.CodeInvalidMessage).With("room", room)
	if cause != nil {
		return builder.Wrapf(cause, "invalid message")
	}
	return builder.Errorf("invalid message")
}

// ErrEngineClosed is returned by operations on a closed engine.
var ErrEngineClosed = oops.Code(core.CodeEngineClosed).Errorf("chat engine closed")

// StorageError wraps a message log failure.
func StorageError(room string, cause error) error {
	return oops.Code(core.CodeStorage).With("room", room).Wrap(cause)
}

// OverlayError wraps an overlay join or leave failure.
func OverlayError(room string, cause error) error {
	return oops.Code(core.CodeOverlay).With("room", room).Wrap(cause)
}
