// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package overlay defines the contract between the chat engine and the
// peer-to-peer network that finds and connects peers sharing a topic.
package overlay

import (
	"context"
	"io"
	"time"

	"github.com/peerchat/peerchat/internal/topic"
)

// Conn is a bidirectional byte stream to one remote peer.
type Conn interface {
	io.ReadWriteCloser

	// SetWriteDeadline bounds pending and future writes.
	SetWriteDeadline(t time.Time) error

	// RemotePeer identifies the remote end for logs and deduplication.
	RemotePeer() string
}

// ConnHandler receives every connection established for a topic, inbound
// and outbound alike. It owns the connection from then on.
type ConnHandler func(conn Conn)

// Membership is an active participation in one topic.
type Membership interface {
	// Leave stops accepting and dialing peers for the topic. Connections
	// already handed to the ConnHandler are left to their owner.
	Leave() error
}

// Overlay joins topics.
type Overlay interface {
	// Join announces the local peer under t and starts delivering connections
	// with other peers of t to handler.
	Join(ctx context.Context, t topic.Topic, handler ConnHandler) (Membership, error)
}
