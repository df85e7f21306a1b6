// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"
	"log/slog"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// DefaultDHTInterval is how often a room's namespace is queried.
const DefaultDHTInterval = 30 * time.Second

// DHTOptions configures NewDHTDiscoverer.
type DHTOptions struct {
	// Bootstrap peers. Empty uses the public IPFS bootstrap nodes.
	Bootstrap []peer.AddrInfo
	// Interval between FindPeers rounds.
	Interval time.Duration
	Logger   *slog.Logger
}

// DHTDiscoverer uses a Kademlia DHT as a global rendezvous point.
type DHTDiscoverer struct {
	kdht     *dht.IpfsDHT
	routing  *drouting.RoutingDiscovery
	self     peer.ID
	interval time.Duration
	log      *slog.Logger
}

var _ Discoverer = (*DHTDiscoverer)(nil)

// NewDHTDiscoverer starts a DHT node on h and bootstraps it.
func NewDHTDiscoverer(ctx context.Context, h host.Host, opts DHTOptions) (*DHTDiscoverer, error) {
	bootstrap := opts.Bootstrap
	if len(bootstrap) == 0 {
		bootstrap = dht.GetDefaultBootstrapPeerAddrInfos()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultDHTInterval
	}

	kdht, err := dht.New(ctx, h,
		dht.Mode(dht.ModeAutoServer),
		dht.BootstrapPeers(bootstrap...),
	)
	if err != nil {
		return nil, oops.Code(core.CodeOverlay).Wrapf(err, "create dht")
	}
	if err := kdht.Bootstrap(ctx); err != nil {
		_ = kdht.Close()
		return nil, oops.Code(core.CodeOverlay).Wrapf(err, "bootstrap dht")
	}

	log := logger.With("discovery", "dht")
	for _, info := range bootstrap {
		go func(info peer.AddrInfo) {
			if err := h.Connect(ctx, info); err != nil {
				log.Debug("bootstrap peer unreachable", "peer", info.ID.String(), "error", err)
			}
		}(info)
	}

	return &DHTDiscoverer{
		kdht:     kdht,
		routing:  drouting.NewRoutingDiscovery(kdht),
		self:     h.ID(),
		interval: interval,
		log:      log,
	}, nil
}

// Name implements Discoverer.
func (d *DHTDiscoverer) Name() string { return "dht" }

// Discover advertises ns and polls the DHT for its providers.
func (d *DHTDiscoverer) Discover(ctx context.Context, ns string) (<-chan peer.AddrInfo, error) {
	dutil.Advertise(ctx, d.routing, ns)

	out := make(chan peer.AddrInfo)
	go func() {
		defer close(out)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			if !d.round(ctx, ns, out) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (d *DHTDiscoverer) round(ctx context.Context, ns string, out chan<- peer.AddrInfo) bool {
	peers, err := d.routing.FindPeers(ctx, ns)
	if err != nil {
		d.log.Debug("find peers failed", "namespace", ns, "error", err)
		return ctx.Err() == nil
	}
	for info := range peers {
		if info.ID == d.self || len(info.Addrs) == 0 {
			continue
		}
		if !forward(ctx, out, info) {
			return false
		}
	}
	return ctx.Err() == nil
}

// Close shuts the DHT node down.
func (d *DHTDiscoverer) Close() error {
	return d.kdht.Close()
}
