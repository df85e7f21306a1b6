// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_SortsByCreation(t *testing.T) {
	prev := NewULID()
	for range 100 {
		next := NewULID()
		assert.Negative(t, prev.Compare(next), "%s should sort before %s", prev, next)
		prev = next
	}
}

func TestNewULID_ConcurrentUnique(t *testing.T) {
	const n = 200
	ids := make(chan ulid.ULID, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewULID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ulid.ULID]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
