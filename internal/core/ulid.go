// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// connIDs hands out monotonic ULIDs for peer connections and console
// sessions. They only label log lines and are never sent to peers.
var connIDs = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{entropy: ulid.Monotonic(rand.Reader, 0)}

// NewULID returns a connection or session ID that sorts by creation time.
func NewULID() ulid.ULID {
	connIDs.Lock()
	defer connIDs.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), connIDs.entropy)
}
