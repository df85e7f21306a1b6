// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

//go:build integration

package chat_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/peerchat/peerchat/internal/chat"
	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay/p2p"
	"github.com/peerchat/peerchat/internal/store"
)

// node is one chat participant on a mocknet libp2p host with an on-disk log.
type node struct {
	name   string
	host   host.Host
	swarm  *p2p.Swarm
	dir    string
	logs   *store.BadgerStore
	engine *chat.Engine

	mu       sync.Mutex
	received []core.ChatMessage
}

func (n *node) record(msg core.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, msg)
}

func (n *node) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.received))
	for _, m := range n.received {
		out = append(out, m.Message)
	}
	return out
}

func (n *node) history(room string) []string {
	msgs, err := n.engine.ChatHistory(context.Background(), room)
	Expect(err).NotTo(HaveOccurred())
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}

func (n *node) users(room string) int {
	for _, r := range n.engine.ActiveRooms() {
		if r.Room == room {
			return r.Users
		}
	}
	return 0
}

// start opens the store and engine on the node's existing swarm.
func (n *node) start() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logs, err := store.NewBadgerStore(store.Options{Dir: n.dir, Logger: logger})
	Expect(err).NotTo(HaveOccurred())
	engine, err := chat.NewEngine(chat.Config{
		Username:       n.name,
		Overlay:        n.swarm,
		Logs:           logs,
		ChunkSize:      4,
		HistoryTimeout: 5 * time.Second,
		Logger:         logger,
	})
	Expect(err).NotTo(HaveOccurred())
	n.logs = logs
	n.engine = engine
}

// stop closes the engine and store but keeps the swarm.
func (n *node) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	Expect(n.engine.Close(ctx)).To(Succeed())
	Expect(n.logs.Close()).To(Succeed())
}

func (n *node) join(room string) {
	n.engine.OnMessage(room, n.record)
	_, err := n.engine.JoinRoom(context.Background(), room)
	Expect(err).NotTo(HaveOccurred())
}

func (n *node) say(room, text string) {
	_, err := n.engine.SendMessage(context.Background(), room, core.MessageInput{Message: text})
	Expect(err).NotTo(HaveOccurred())
}

// newMesh creates fully linked nodes that know each other's addresses.
func newMesh(names ...string) []*node {
	mn := mocknet.New()
	DeferCleanup(func() { _ = mn.Close() })

	nodes := make([]*node, len(names))
	for i, name := range names {
		h, err := mn.GenPeer()
		Expect(err).NotTo(HaveOccurred())
		nodes[i] = &node{name: name, host: h, dir: GinkgoT().TempDir()}
	}
	Expect(mn.LinkAll()).To(Succeed())

	for _, n := range nodes {
		var others []peer.AddrInfo
		for _, o := range nodes {
			if o != n {
				others = append(others, peer.AddrInfo{ID: o.host.ID(), Addrs: o.host.Addrs()})
			}
		}
		n.swarm = p2p.New(n.host, p2p.Options{
			Discoverers: []p2p.Discoverer{p2p.NewStaticDiscovererFromInfos(others...)},
			DialBackoff: 10 * time.Millisecond,
			DialGrace:   100 * time.Millisecond,
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		n.start()
	}

	DeferCleanup(func() {
		for _, n := range nodes {
			n.stop()
			_ = n.swarm.Close()
		}
	})
	return nodes
}

var _ = Describe("Chat over a libp2p mesh", func() {
	const room = "lobby"

	Describe("message propagation", func() {
		It("delivers a message to every peer in the room", func() {
			nodes := newMesh("alice", "bob", "carol")
			alice, bob, carol := nodes[0], nodes[1], nodes[2]
			for _, n := range nodes {
				n.join(room)
			}
			Eventually(func() int { return alice.engine.PeerCount(room) }, 10*time.Second).Should(Equal(2))

			alice.say(room, "hello mesh")

			Eventually(bob.messages, 5*time.Second).Should(ContainElement("hello mesh"))
			Eventually(carol.messages, 5*time.Second).Should(ContainElement("hello mesh"))
			Expect(bob.history(room)).To(Equal([]string{"hello mesh"}))
		})

		It("does not deliver to peers in another room", func() {
			nodes := newMesh("alice", "bob")
			alice, bob := nodes[0], nodes[1]
			alice.join(room)
			bob.join("dev")

			alice.say(room, "only lobby")

			Consistently(bob.messages, 500*time.Millisecond).Should(BeEmpty())
			Expect(bob.history("dev")).To(BeEmpty())
		})
	})

	Describe("history backfill", func() {
		It("gives a late joiner the full log in order", func() {
			nodes := newMesh("alice", "bob")
			alice, bob := nodes[0], nodes[1]
			alice.join(room)

			var want []string
			for i := range 10 {
				text := fmt.Sprintf("message %d", i)
				alice.say(room, text)
				want = append(want, text)
			}

			bob.join(room)

			Eventually(func() []string { return bob.history(room) }, 10*time.Second).Should(Equal(want))
			Eventually(bob.messages, 5*time.Second).Should(Equal(want))
		})

		It("keeps a log across a restart", func() {
			nodes := newMesh("alice")
			alice := nodes[0]
			alice.join(room)
			alice.say(room, "before restart")

			alice.stop()
			alice.start()
			alice.join(room)

			Expect(alice.history(room)).To(Equal([]string{"before restart"}))
		})
	})

	Describe("presence", func() {
		It("tracks users as peers join and leave", func() {
			nodes := newMesh("alice", "bob", "carol")
			alice, carol := nodes[0], nodes[2]
			for _, n := range nodes {
				n.join(room)
			}
			Eventually(func() int { return alice.users(room) }, 10*time.Second).Should(Equal(3))

			Expect(carol.engine.LeaveRoom(context.Background(), room)).To(Succeed())

			Eventually(func() int { return alice.users(room) }, 10*time.Second).Should(Equal(2))
			Expect(carol.users(room)).To(Equal(0))
		})
	})
})
