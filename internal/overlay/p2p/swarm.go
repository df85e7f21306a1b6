// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
	"github.com/peerchat/peerchat/internal/topic"
)

// ProtocolPrefix precedes the topic hex in every room's stream protocol.
const ProtocolPrefix = "/peerchat/room/1.0.0/"

// Defaults applied to zero Options fields.
const (
	DefaultDialBackoff = 500 * time.Millisecond
	DefaultDialRetries = 3
	DefaultDialGrace   = 3 * time.Second
)

// ProtocolID returns the stream protocol for a topic.
func ProtocolID(t topic.Topic) protocol.ID {
	return protocol.ID(ProtocolPrefix + t.String())
}

// Options configures a Swarm.
type Options struct {
	Discoverers []Discoverer
	// DialBackoff is the initial delay between dial attempts.
	DialBackoff time.Duration
	// DialRetries bounds dial attempts after the first.
	DialRetries uint64
	// DialGrace is how long the peer with the higher ID waits for the lower
	// one to dial before dialing itself.
	DialGrace time.Duration
	Logger    *slog.Logger
}

// Swarm is an overlay.Overlay on a libp2p host. Each joined topic registers
// its own stream protocol; peers found by the discoverers are dialed on it.
type Swarm struct {
	host host.Host
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	rooms  map[topic.Topic]*membership
	closed bool
}

var _ overlay.Overlay = (*Swarm)(nil)

// New creates a swarm on h.
func New(h host.Host, opts Options) *Swarm {
	if opts.DialBackoff <= 0 {
		opts.DialBackoff = DefaultDialBackoff
	}
	if opts.DialRetries == 0 {
		opts.DialRetries = DefaultDialRetries
	}
	if opts.DialGrace < 0 {
		opts.DialGrace = 0
	} else if opts.DialGrace == 0 {
		opts.DialGrace = DefaultDialGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Swarm{
		host:  h,
		opts:  opts,
		log:   logger.With("component", "swarm", "peer_id", h.ID().String()),
		rooms: make(map[topic.Topic]*membership),
	}
}

// Host returns the underlying libp2p host.
func (s *Swarm) Host() host.Host { return s.host }

// Addrs returns the host's dialable addresses including its peer ID.
func (s *Swarm) Addrs() []string {
	info := peer.AddrInfo{ID: s.host.ID(), Addrs: s.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// Join starts serving and discovering peers for t.
func (s *Swarm) Join(ctx context.Context, t topic.Topic, handler overlay.ConnHandler) (overlay.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("topic", t.String()).Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, oops.Code(core.CodeOverlay).Errorf("swarm closed")
	}
	if _, ok := s.rooms[t]; ok {
		return nil, oops.Code(core.CodeOverlay).With("topic", t.String()).Errorf("topic already joined")
	}

	mctx, cancel := context.WithCancel(context.Background())
	m := &membership{
		swarm:   s,
		topic:   t,
		pid:     ProtocolID(t),
		handler: handler,
		ctx:     mctx,
		cancel:  cancel,
		active:  make(map[peer.ID]bool),
		dialing: make(map[peer.ID]bool),
		log:     s.log.With("topic", t.String()),
	}
	s.host.SetStreamHandler(m.pid, m.accept)

	started := 0
	var lastErr error
	for _, d := range s.opts.Discoverers {
		found, err := d.Discover(mctx, t.Namespace())
		if err != nil {
			lastErr = err
			m.log.Warn("discovery backend failed", "backend", d.Name(), "error", err)
			continue
		}
		started++
		m.wg.Add(1)
		go m.consume(d.Name(), found)
	}
	if started == 0 && lastErr != nil {
		m.stop()
		return nil, oops.Code(core.CodeOverlay).With("topic", t.String()).Wrapf(lastErr, "no discovery backend available")
	}

	s.rooms[t] = m
	m.log.Debug("joined topic", "protocol", string(m.pid), "discoverers", started)
	return m, nil
}

// Close leaves every topic, closes the discoverers and the host.
func (s *Swarm) Close() error {
	s.mu.Lock()
	s.closed = true
	rooms := make([]*membership, 0, len(s.rooms))
	for _, m := range s.rooms {
		rooms = append(rooms, m)
	}
	s.mu.Unlock()

	for _, m := range rooms {
		_ = m.Leave()
	}
	for _, d := range s.opts.Discoverers {
		if err := d.Close(); err != nil {
			s.log.Debug("discoverer close failed", "backend", d.Name(), "error", err)
		}
	}
	return s.host.Close()
}

func (s *Swarm) forget(m *membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[m.topic] == m {
		delete(s.rooms, m.topic)
	}
}

// membership is one joined topic. It keeps at most one stream per remote
// peer: when both sides dial, the stream opened by the lower peer ID wins.
type membership struct {
	swarm   *Swarm
	topic   topic.Topic
	pid     protocol.ID
	handler overlay.ConnHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	log     *slog.Logger

	mu      sync.Mutex
	active  map[peer.ID]bool
	dialing map[peer.ID]bool
}

func (m *membership) self() peer.ID { return m.swarm.host.ID() }

// Leave implements overlay.Membership.
func (m *membership) Leave() error {
	m.once.Do(func() {
		m.stop()
		m.swarm.forget(m)
		m.log.Debug("left topic")
	})
	return nil
}

func (m *membership) stop() {
	m.swarm.host.RemoveStreamHandler(m.pid)
	m.cancel()
	m.wg.Wait()
}

func (m *membership) accept(st network.Stream) {
	remote := st.Conn().RemotePeer()

	m.mu.Lock()
	reject := m.ctx.Err() != nil || m.active[remote] || (m.dialing[remote] && m.self() < remote)
	if !reject {
		m.active[remote] = true
	}
	m.mu.Unlock()

	if reject {
		_ = st.Reset()
		return
	}
	m.log.Debug("inbound peer", "peer", remote.String())
	m.handler(newStreamConn(st, func() { m.release(remote) }))
}

func (m *membership) release(remote peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, remote)
}

func (m *membership) consume(backend string, found <-chan peer.AddrInfo) {
	defer m.wg.Done()
	for info := range found {
		if info.ID == m.self() || info.ID == "" {
			continue
		}
		m.mu.Lock()
		busy := m.active[info.ID] || m.dialing[info.ID]
		if !busy {
			m.dialing[info.ID] = true
		}
		m.mu.Unlock()
		if busy {
			continue
		}

		m.log.Debug("discovered peer", "backend", backend, "peer", info.ID.String())
		m.wg.Add(1)
		go m.dial(info)
	}
}

func (m *membership) dial(info peer.AddrInfo) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.dialing, info.ID)
		m.mu.Unlock()
	}()

	if m.self() > info.ID && m.swarm.opts.DialGrace > 0 {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.swarm.opts.DialGrace):
		}
		m.mu.Lock()
		connected := m.active[info.ID]
		m.mu.Unlock()
		if connected {
			return
		}
	}

	h := m.swarm.host
	backoff := retry.WithMaxRetries(m.swarm.opts.DialRetries, retry.NewExponential(m.swarm.opts.DialBackoff))

	var st network.Stream
	err := retry.Do(m.ctx, backoff, func(ctx context.Context) error {
		if err := h.Connect(ctx, info); err != nil {
			return retry.RetryableError(err)
		}
		s, err := h.NewStream(ctx, info.ID, m.pid)
		if err != nil {
			return retry.RetryableError(err)
		}
		st = s
		return nil
	})
	if err != nil {
		if m.ctx.Err() == nil {
			m.log.Debug("dial failed", "peer", info.ID.String(), "error", err)
		}
		return
	}

	m.mu.Lock()
	reject := m.ctx.Err() != nil || m.active[info.ID]
	if !reject {
		m.active[info.ID] = true
	}
	m.mu.Unlock()

	if reject {
		_ = st.Reset()
		return
	}
	m.log.Debug("outbound peer", "peer", info.ID.String())
	m.handler(newStreamConn(st, func() { m.release(info.ID) }))
}
