// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package p2p implements the overlay on libp2p: one host, one stream
// protocol per room topic, and pluggable rendezvous discovery.
package p2p

import (
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// DefaultListenAddrs listens on a random TCP and QUIC port on every
// interface.
var DefaultListenAddrs = []string{
	"/ip4/0.0.0.0/tcp/0",
	"/ip4/0.0.0.0/udp/0/quic-v1",
}

// HostOptions configures NewHost.
type HostOptions struct {
	Identity    crypto.PrivKey
	ListenAddrs []string
	// NAT enables port mapping and hole punching.
	NAT bool
}

// NewHost creates a libp2p host.
func NewHost(opts HostOptions) (host.Host, error) {
	addrs := opts.ListenAddrs
	if len(addrs) == 0 {
		addrs = DefaultListenAddrs
	}
	options := []libp2p.Option{
		libp2p.ListenAddrStrings(addrs...),
	}
	if opts.Identity != nil {
		options = append(options, libp2p.Identity(opts.Identity))
	}
	if opts.NAT {
		options = append(options,
			libp2p.NATPortMap(),
			libp2p.EnableHolePunching(),
		)
	}

	h, err := libp2p.New(options...)
	if err != nil {
		return nil, oops.Code(core.CodeOverlay).With("listen", addrs).Wrapf(err, "create libp2p host")
	}
	return h, nil
}
