// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/peerchat/peerchat/internal/overlay"
)

// streamConn adapts a libp2p stream to overlay.Conn.
type streamConn struct {
	network.Stream
	onClose func()
	once    sync.Once

	// Some transports cannot bound writes; the first refusal disables
	// further attempts.
	noDeadline atomic.Bool
}

var _ overlay.Conn = (*streamConn)(nil)

func newStreamConn(s network.Stream, onClose func()) *streamConn {
	return &streamConn{Stream: s, onClose: onClose}
}

func (c *streamConn) RemotePeer() string {
	return c.Stream.Conn().RemotePeer().String()
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	if c.noDeadline.Load() {
		return nil
	}
	if err := c.Stream.SetWriteDeadline(t); err != nil {
		c.noDeadline.Store(true)
	}
	return nil
}

// Close closes the stream and releases its slot in the room.
func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.Stream.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return err
}
