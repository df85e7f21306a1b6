// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"
	"log/slog"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// mdnsServiceLen keeps the service name inside one DNS label.
const mdnsServiceLen = 40

// MDNSDiscoverer finds peers of a room on the local network.
type MDNSDiscoverer struct {
	host host.Host
	log  *slog.Logger
}

var _ Discoverer = (*MDNSDiscoverer)(nil)

// NewMDNSDiscoverer creates an mDNS discoverer for h.
func NewMDNSDiscoverer(h host.Host, log *slog.Logger) *MDNSDiscoverer {
	if log == nil {
		log = slog.Default()
	}
	return &MDNSDiscoverer{host: h, log: log.With("discovery", "mdns")}
}

// Name implements Discoverer.
func (m *MDNSDiscoverer) Name() string { return "mdns" }

// serviceName truncates a namespace to a valid DNS-SD service label.
func serviceName(ns string) string {
	if len(ns) > mdnsServiceLen {
		return ns[:mdnsServiceLen]
	}
	return ns
}

// Discover runs one mDNS service per namespace for the lifetime of ctx.
func (m *MDNSDiscoverer) Discover(ctx context.Context, ns string) (<-chan peer.AddrInfo, error) {
	out := make(chan peer.AddrInfo, 8)
	n := &mdnsNotifee{ctx: ctx, self: m.host.ID(), out: out}

	svc := mdns.NewMdnsService(m.host, serviceName(ns), n)
	if err := svc.Start(); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("namespace", ns).Wrapf(err, "start mdns")
	}
	m.log.Debug("mdns service started", "service", serviceName(ns))

	go func() {
		<-ctx.Done()
		if err := svc.Close(); err != nil {
			m.log.Debug("mdns close failed", "error", err)
		}
		n.close()
	}()
	return out, nil
}

// Close implements Discoverer.
func (m *MDNSDiscoverer) Close() error { return nil }

// mdnsNotifee forwards mDNS hits to the namespace's channel.
type mdnsNotifee struct {
	ctx  context.Context
	self peer.ID
	out  chan peer.AddrInfo

	mu     sync.Mutex
	closed bool
}

// HandlePeerFound implements mdns.Notifee.
func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.self {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.out <- info:
	case <-n.ctx.Done():
	default:
		// mDNS repeats its queries; a dropped hit is found again later.
	}
}

func (n *mdnsNotifee) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.out)
	}
}
