// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// StaticDiscoverer reports a fixed peer list for every namespace. Peers that
// are not members of the room refuse the room protocol and are skipped.
type StaticDiscoverer struct {
	peers []peer.AddrInfo
}

var _ Discoverer = (*StaticDiscoverer)(nil)

// NewStaticDiscoverer parses multiaddrs ending in /p2p/<peer id>.
func NewStaticDiscoverer(addrs []string) (*StaticDiscoverer, error) {
	infos := make([]peer.AddrInfo, 0, len(addrs))
	for _, a := range addrs {
		info, err := peer.AddrInfoFromString(a)
		if err != nil {
			return nil, oops.Code(core.CodeOverlay).With("addr", a).Wrapf(err, "parse peer address")
		}
		infos = append(infos, *info)
	}
	return &StaticDiscoverer{peers: infos}, nil
}

// Name implements Discoverer.
func (s *StaticDiscoverer) Name() string { return "static" }

// Discover emits every configured peer once.
func (s *StaticDiscoverer) Discover(ctx context.Context, _ string) (<-chan peer.AddrInfo, error) {
	out := make(chan peer.AddrInfo)
	go func() {
		defer close(out)
		for _, info := range s.peers {
			if !forward(ctx, out, info) {
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

// Close implements Discoverer.
func (s *StaticDiscoverer) Close() error { return nil }

// NewStaticDiscovererFromInfos builds a static discoverer from resolved
// peer infos.
func NewStaticDiscovererFromInfos(infos ...peer.AddrInfo) *StaticDiscoverer {
	return &StaticDiscoverer{peers: infos}
}
