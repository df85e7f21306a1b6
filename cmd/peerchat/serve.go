// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/peerchat/peerchat/internal/api"
	"github.com/peerchat/peerchat/internal/chat"
	"github.com/peerchat/peerchat/internal/config"
	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/logging"
	"github.com/peerchat/peerchat/internal/observability"
	"github.com/peerchat/peerchat/internal/overlay/p2p"
	"github.com/peerchat/peerchat/internal/store"
	"github.com/peerchat/peerchat/internal/telnet"
	"github.com/peerchat/peerchat/internal/xdg"
)

const (
	shutdownTimeout = 5 * time.Second
	eventBuffer     = 64
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a chat node",
		Long: `Start a chat node: join the peer-to-peer overlay, open the configured
rooms and serve the HTTP API, the telnet console and metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs a node with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, cfgPath, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.Setup(logging.Options{
		Service: "peerchat",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting node", "config", cfgPath, "data_dir", cfg.DataDir, "username", cfg.Username)

	if err := xdg.EnsureDir(cfg.DataDir); err != nil {
		return err
	}
	identity, err := p2p.LoadOrCreateIdentity(xdg.IdentityFile(cfg.DataDir))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := deps.HostFactory(p2p.HostOptions{
		Identity:    identity,
		ListenAddrs: cfg.Overlay.ListenAddrs,
		NAT:         cfg.Overlay.NAT,
	})
	if err != nil {
		return err
	}
	discoverers, err := deps.DiscoveryFactory(ctx, h, cfg.Overlay, logger)
	if err != nil {
		_ = h.Close()
		return err
	}
	swarm := p2p.New(h, p2p.Options{Discoverers: discoverers, Logger: logger})
	defer func() {
		if err := swarm.Close(); err != nil {
			logger.Warn("error closing overlay", "error", err)
		}
	}()

	logs, err := deps.LogStoreFactory(store.Options{Dir: cfg.DataDir, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := logs.Close(); err != nil {
			logger.Warn("error closing message store", "error", err)
		}
	}()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		metrics = obsServer.Metrics()
	}

	engine, err := chat.NewEngine(chat.Config{
		Username:       cfg.Username,
		Overlay:        swarm,
		Logs:           logs,
		ChunkSize:      cfg.Chat.HistoryChunkSize,
		WriteTimeout:   cfg.Chat.WriteTimeout,
		HistoryTimeout: cfg.Chat.HistoryTimeout,
		SendQueue:      cfg.Chat.SendQueue,
		MaxFrameBytes:  cfg.Chat.MaxFrameBytes,
		WelcomeMessage: cfg.Chat.WelcomeMessage,
		AllowedRooms:   cfg.Chat.AllowedRooms,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Warn("error closing chat engine", "error", err)
		}
	}()

	events := core.NewBroadcaster(eventBuffer, logger)
	defer engine.OnRoomUpdate(events.PublishRooms)()

	for _, room := range cfg.Chat.Autojoin {
		engine.OnMessage(room, func(msg core.ChatMessage) { events.PublishMessage(room, msg) })
		if _, err := engine.JoinRoom(ctx, room); err != nil {
			return oops.With("room", room).Wrapf(err, "autojoin")
		}
	}

	node := &Node{
		Engine:    engine,
		PeerID:    h.ID().String(),
		PeerAddrs: swarm.Addrs(),
	}
	logger.Info("overlay ready", "peer_id", node.PeerID, "addrs", node.PeerAddrs)

	if cfg.API.Addr != "" {
		apiServer := api.NewServer(cfg.API.Addr, engine, events, metrics, logger)
		apiErrCh, err := apiServer.Start()
		if err != nil {
			return err
		}
		defer stopServer(logger, "api", apiServer.Stop)
		go monitorServerErrors(ctx, cancel, apiErrCh, "api")
		node.APIAddr = apiServer.Addr()
	}

	var telnetWG sync.WaitGroup
	if cfg.Telnet.Addr != "" {
		telnetServer := telnet.NewServer(cfg.Telnet.Addr, engine, events, metrics, logger)
		if err := telnetServer.Listen(); err != nil {
			return err
		}
		telnetCtx, telnetCancel := context.WithCancel(ctx)
		telnetErrCh := make(chan error, 1)
		telnetWG.Add(1)
		go func() {
			defer telnetWG.Done()
			defer close(telnetErrCh)
			if err := telnetServer.Run(telnetCtx); err != nil {
				telnetErrCh <- err
			}
		}()
		go monitorServerErrors(ctx, cancel, telnetErrCh, "telnet")
		defer telnetWG.Wait()
		defer telnetCancel()
		node.TelnetAddr = telnetServer.Addr()
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Wrapf(err, "start observability server")
		}
		defer stopServer(logger, "observability", obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		node.MetricsAddr = obsServer.Addr()
	}

	ready.Store(true)
	cmd.Println("PeerChat node started")
	logger.Info("node ready",
		"api_addr", node.APIAddr,
		"telnet_addr", node.TelnetAddr,
		"metrics_addr", node.MetricsAddr,
	)
	if deps.Ready != nil {
		deps.Ready(node)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	ready.Store(false)
	logger.Info("shutting down...")
	return nil
}

// stopServer stops a server with the shutdown timeout.
func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// newDiscoverers builds the discovery backends enabled in cfg.
func newDiscoverers(ctx context.Context, h host.Host, cfg config.OverlayConfig, logger *slog.Logger) (ds []p2p.Discoverer, err error) {
	defer func() {
		if err != nil {
			for _, d := range ds {
				_ = d.Close()
			}
			ds = nil
		}
	}()

	if len(cfg.Peers) > 0 {
		static, err := p2p.NewStaticDiscoverer(cfg.Peers)
		if err != nil {
			return ds, err
		}
		ds = append(ds, static)
	}
	if cfg.MDNS {
		ds = append(ds, p2p.NewMDNSDiscoverer(h, logger))
	}
	if cfg.DHT {
		bootstrap, err := parseAddrInfos(cfg.Bootstrap)
		if err != nil {
			return ds, err
		}
		d, err := p2p.NewDHTDiscoverer(ctx, h, p2p.DHTOptions{Bootstrap: bootstrap, Logger: logger})
		if err != nil {
			return ds, err
		}
		ds = append(ds, d)
	}
	if cfg.MQTT.Broker != "" {
		d, err := p2p.NewMQTTDiscoverer(h, p2p.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Logger:      logger,
		})
		if err != nil {
			return ds, err
		}
		ds = append(ds, d)
	}

	logger.Info("peer discovery configured", "backends", lo.Map(ds, func(d p2p.Discoverer, _ int) string { return d.Name() }))
	return ds, nil
}

// parseAddrInfos parses full multiaddrs that end in /p2p/<peer id>.
func parseAddrInfos(addrs []string) ([]peer.AddrInfo, error) {
	infos := make([]peer.AddrInfo, 0, len(addrs))
	var errs []error
	for _, a := range addrs {
		info, err := peer.AddrInfoFromString(a)
		if err != nil {
			errs = append(errs, oops.Code(core.CodeOverlay).With("addr", a).Wrapf(err, "parse bootstrap address"))
			continue
		}
		infos = append(infos, *info)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return infos, nil
}
