// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// DefaultMQTTTopicPrefix roots every rendezvous topic.
const DefaultMQTTTopicPrefix = "peerchat"

const mqttTimeout = 10 * time.Second

// MQTTOptions configures NewMQTTDiscoverer.
type MQTTOptions struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	Logger      *slog.Logger
}

// MQTTDiscoverer uses retained messages on an MQTT broker as a rendezvous
// point. Each host publishes its addresses at <prefix>/<namespace>/<peer id>
// and subscribes to <prefix>/<namespace>/+.
type MQTTDiscoverer struct {
	opts   MQTTOptions
	host   host.Host
	client paho.Client
	log    *slog.Logger
}

var _ Discoverer = (*MQTTDiscoverer)(nil)

// NewMQTTDiscoverer connects to the broker.
func NewMQTTDiscoverer(h host.Host, opts MQTTOptions) (*MQTTDiscoverer, error) {
	if opts.Broker == "" {
		return nil, oops.Code(core.CodeOverlay).Errorf("mqtt broker URL is required")
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultMQTTTopicPrefix
	}
	if opts.ClientID == "" {
		opts.ClientID = "peerchat-" + h.ID().String()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &MQTTDiscoverer{
		opts: opts,
		host: h,
		log:  opts.Logger.With("discovery", "mqtt"),
	}

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			d.log.Warn("mqtt connection lost", "error", err)
		})
	if opts.Username != "" {
		copts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		copts.SetPassword(opts.Password)
	}

	d.client = paho.NewClient(copts)
	token := d.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, oops.Code(core.CodeOverlay).With("broker", opts.Broker).Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("broker", opts.Broker).Wrapf(err, "connect to mqtt broker")
	}
	d.log.Info("connected to mqtt broker", "broker", opts.Broker)
	return d, nil
}

// Name implements Discoverer.
func (d *MQTTDiscoverer) Name() string { return "mqtt" }

func (d *MQTTDiscoverer) base(ns string) string {
	return d.opts.TopicPrefix + "/" + ns
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(mqttTimeout) {
		return oops.Code(core.CodeOverlay).Errorf("mqtt operation timed out")
	}
	return t.Error()
}

// Discover publishes the local addresses and streams peers announced under
// ns. The announcement is cleared when ctx is done.
func (d *MQTTDiscoverer) Discover(ctx context.Context, ns string) (<-chan peer.AddrInfo, error) {
	self := peer.AddrInfo{ID: d.host.ID(), Addrs: d.host.Addrs()}
	payload, err := json.Marshal(self)
	if err != nil {
		return nil, oops.Code(core.CodeOverlay).Wrap(err)
	}

	own := d.base(ns) + "/" + self.ID.String()
	sub := newMQTTSubscription(ctx, self.ID)

	if err := wait(d.client.Subscribe(d.base(ns)+"/+", 1, sub.handle)); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("topic", d.base(ns)).Wrapf(err, "subscribe")
	}
	if err := wait(d.client.Publish(own, 1, true, payload)); err != nil {
		_ = wait(d.client.Unsubscribe(d.base(ns) + "/+"))
		return nil, oops.Code(core.CodeOverlay).With("topic", own).Wrapf(err, "announce")
	}
	d.log.Debug("announced", "topic", own)

	go func() {
		<-ctx.Done()
		if err := wait(d.client.Unsubscribe(d.base(ns) + "/+")); err != nil {
			d.log.Debug("unsubscribe failed", "error", err)
		}
		// An empty retained message deletes the announcement.
		if err := wait(d.client.Publish(own, 1, true, []byte{})); err != nil {
			d.log.Debug("clear announcement failed", "error", err)
		}
		sub.close()
	}()
	return sub.out, nil
}

// Close disconnects from the broker.
func (d *MQTTDiscoverer) Close() error {
	d.client.Disconnect(1000)
	return nil
}

// mqttSubscription turns announcement messages into AddrInfos.
type mqttSubscription struct {
	ctx  context.Context
	self peer.ID
	out  chan peer.AddrInfo

	mu     sync.Mutex
	closed bool
}

func newMQTTSubscription(ctx context.Context, self peer.ID) *mqttSubscription {
	return &mqttSubscription{ctx: ctx, self: self, out: make(chan peer.AddrInfo, 16)}
}

func (s *mqttSubscription) handle(_ paho.Client, msg paho.Message) {
	if len(msg.Payload()) == 0 {
		return
	}
	var info peer.AddrInfo
	if err := json.Unmarshal(msg.Payload(), &info); err != nil {
		return
	}
	if info.ID == s.self || info.ID == "" {
		return
	}
	if idx := strings.LastIndexByte(msg.Topic(), '/'); idx >= 0 && msg.Topic()[idx+1:] != info.ID.String() {
		// The topic names the announcer; anything else is spoofed or stale.
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- info:
	case <-s.ctx.Done():
	}
}

func (s *mqttSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
