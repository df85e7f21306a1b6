// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package topic derives overlay rendezvous keys from room names.
package topic

import (
	"crypto/sha256"
	"encoding/hex"
)

// namespacePrefix scopes rendezvous strings so unrelated applications sharing
// a discovery backend never collide with our rooms.
const namespacePrefix = "peerchat-"

// Topic is the 32-byte SHA-256 digest of a room name.
type Topic [32]byte

// For returns the topic for a room name. Identical names always yield the
// same topic on every peer.
func For(room string) Topic {
	return Topic(sha256.Sum256([]byte(room)))
}

// String returns the lowercase hex encoding of the topic.
func (t Topic) String() string {
	return hex.EncodeToString(t[:])
}

// Namespace returns the rendezvous string advertised to discovery backends.
func (t Topic) Namespace() string {
	return namespacePrefix + t.String()
}

// Bytes returns a copy of the raw digest.
func (t Topic) Bytes() []byte {
	b := make([]byte, len(t))
	copy(b, t[:])
	return b
}
