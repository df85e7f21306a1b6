// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/pkg/errutil"
)

func newPeerID(t *testing.T) peer.ID {
	t.Helper()
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(key)
	require.NoError(t, err)
	return id
}

func TestNewStaticDiscoverer_Parses(t *testing.T) {
	d, err := NewStaticDiscoverer([]string{"/ip4/127.0.0.1/tcp/4001/p2p/" + newPeerID(t).String()})
	require.NoError(t, err)
	require.Len(t, d.peers, 1)
	assert.Equal(t, "static", d.Name())
}

func TestNewStaticDiscoverer_RejectsAddressWithoutPeerID(t *testing.T) {
	_, err := NewStaticDiscoverer([]string{"/ip4/127.0.0.1/tcp/4001"})
	errutil.AssertErrorCode(t, err, core.CodeOverlay)
}

func TestStaticDiscoverer_EmitsThenClosesOnCancel(t *testing.T) {
	id := newPeerID(t)
	d, err := NewStaticDiscoverer([]string{"/ip4/127.0.0.1/tcp/4001/p2p/" + id.String()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.Discover(ctx, "ns")
	require.NoError(t, err)

	info := <-ch
	assert.Equal(t, id, info.ID)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.NoError(t, d.Close())
}
