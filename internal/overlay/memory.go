// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package overlay

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/topic"
)

// Hub is an in-process overlay network. Every node joined to the same topic
// is connected to every other node with net.Pipe. It backs engine tests and
// the local demo mode.
type Hub struct {
	mu      sync.Mutex
	members map[topic.Topic]map[*hubMember]struct{}
}

// NewHub creates an empty in-process network.
func NewHub() *Hub {
	return &Hub{members: make(map[topic.Topic]map[*hubMember]struct{})}
}

// Node returns an Overlay attached to the hub under the given name.
func (h *Hub) Node(name string) *HubNode {
	return &HubNode{hub: h, name: name}
}

// HubNode is one participant of a Hub.
type HubNode struct {
	hub  *Hub
	name string

	// FailJoin, when set, is returned by Join.
	FailJoin error
}

var _ Overlay = (*HubNode)(nil)

type hubMember struct {
	node    *HubNode
	topic   topic.Topic
	handler ConnHandler
	once    sync.Once
}

// Join connects the node to every current member of t.
func (n *HubNode) Join(ctx context.Context, t topic.Topic, handler ConnHandler) (Membership, error) {
	if n.FailJoin != nil {
		return nil, oops.Code(core.CodeOverlay).With("topic", t.String()).Wrap(n.FailJoin)
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("topic", t.String()).Wrap(err)
	}

	m := &hubMember{node: n, topic: t, handler: handler}

	n.hub.mu.Lock()
	peers := make([]*hubMember, 0, len(n.hub.members[t]))
	for other := range n.hub.members[t] {
		peers = append(peers, other)
	}
	if n.hub.members[t] == nil {
		n.hub.members[t] = make(map[*hubMember]struct{})
	}
	n.hub.members[t][m] = struct{}{}
	n.hub.mu.Unlock()

	for _, other := range peers {
		local, remote := net.Pipe()
		go other.handler(&pipeConn{Conn: remote, remote: n.name})
		go handler(&pipeConn{Conn: local, remote: other.node.name})
	}
	return m, nil
}

// Members returns how many nodes are joined to t.
func (h *Hub) Members(t topic.Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members[t])
}

// Leave removes the member from its topic.
func (m *hubMember) Leave() error {
	m.once.Do(func() {
		h := m.node.hub
		h.mu.Lock()
		delete(h.members[m.topic], m)
		if len(h.members[m.topic]) == 0 {
			delete(h.members, m.topic)
		}
		h.mu.Unlock()
	})
	return nil
}

type pipeConn struct {
	net.Conn
	remote string
}

func (p *pipeConn) RemotePeer() string { return p.remote }

func (p *pipeConn) String() string { return fmt.Sprintf("pipe(%s)", p.remote) }
