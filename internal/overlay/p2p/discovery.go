// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Discoverer announces the local host under a rendezvous namespace and
// reports other hosts announced under it.
type Discoverer interface {
	// Name identifies the backend in logs.
	Name() string

	// Discover advertises the local host under ns until ctx is done and
	// streams peers found under ns. The channel is closed when ctx is done.
	Discover(ctx context.Context, ns string) (<-chan peer.AddrInfo, error)

	// Close releases backend resources shared across namespaces.
	Close() error
}

// forward sends info on out unless ctx is done first.
func forward(ctx context.Context, out chan<- peer.AddrInfo, info peer.AddrInfo) bool {
	select {
	case out <- info:
		return true
	case <-ctx.Done():
		return false
	}
}
