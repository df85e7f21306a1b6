// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/host"

	"github.com/peerchat/peerchat/internal/chat"
	"github.com/peerchat/peerchat/internal/config"
	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/observability"
	"github.com/peerchat/peerchat/internal/overlay/p2p"
	"github.com/peerchat/peerchat/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// HostFactory creates the libp2p host.
	// Default: p2p.NewHost
	HostFactory func(opts p2p.HostOptions) (host.Host, error)

	// DiscoveryFactory builds the discovery backends for the host.
	// Default: newDiscoverers
	DiscoveryFactory func(ctx context.Context, h host.Host, cfg config.OverlayConfig, logger *slog.Logger) ([]p2p.Discoverer, error)

	// LogStoreFactory opens the per-room message store.
	// Default: store.NewBadgerStore
	LogStoreFactory func(opts store.Options) (LogStore, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Ready is called once every listener is up.
	Ready func(node *Node)
}

// LogStore wraps the methods used by serve from store.BadgerStore.
type LogStore interface {
	core.LogStore
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Node describes a running node.
type Node struct {
	Engine     *chat.Engine
	PeerID     string
	PeerAddrs  []string
	APIAddr    string
	TelnetAddr string
	// MetricsAddr is empty when the observability server is disabled.
	MetricsAddr string
}

func (d *ServeDeps) applyDefaults() {
	if d.HostFactory == nil {
		d.HostFactory = p2p.NewHost
	}
	if d.DiscoveryFactory == nil {
		d.DiscoveryFactory = newDiscoverers
	}
	if d.LogStoreFactory == nil {
		d.LogStoreFactory = func(opts store.Options) (LogStore, error) {
			return store.NewBadgerStore(opts)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
}
