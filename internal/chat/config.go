// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package chat

import (
	"log/slog"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/observability"
	"github.com/peerchat/peerchat/internal/overlay"
	"github.com/peerchat/peerchat/internal/peer"
	"github.com/peerchat/peerchat/internal/protocol"
)

// Defaults applied by NewEngine to zero Config fields.
const (
	DefaultUsername       = "anonymous"
	DefaultHistoryTimeout = 30 * time.Second
)

// Config wires an Engine.
type Config struct {
	// Username names locally sent messages that carry no name.
	Username string
	Overlay  overlay.Overlay
	Logs     core.LogStore

	// ChunkSize is the number of messages per history_chunk.
	ChunkSize int
	// WriteTimeout bounds a single frame write to a peer.
	WriteTimeout time.Duration
	// HistoryTimeout bounds both serving a history request and waiting for
	// a peer's final chunk.
	HistoryTimeout time.Duration
	// SendQueue is the per-peer outbound frame queue length.
	SendQueue int
	// MaxFrameBytes bounds a single inbound frame.
	MaxFrameBytes int

	// WelcomeMessage, when set, is sent from System after each join. "%s"
	// is replaced by the room name.
	WelcomeMessage string
	// AllowedRooms restricts joinable room names to these glob patterns.
	// Empty allows every name.
	AllowedRooms []string

	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Now is the clock for IDs and timestamps. Nil uses time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = peer.DefaultWriteTimeout
	}
	if c.HistoryTimeout <= 0 {
		c.HistoryTimeout = DefaultHistoryTimeout
	}
	if c.SendQueue <= 0 {
		c.SendQueue = peer.DefaultSendQueue
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = peer.DefaultMaxFrameBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Validate reports missing collaborators and malformed room patterns.
func (c *Config) Validate() error {
	if c.Overlay == nil {
		return oops.Code("CONFIG_INVALID").Errorf("overlay is required")
	}
	if c.Logs == nil {
		return oops.Code("CONFIG_INVALID").Errorf("log store is required")
	}
	_, err := compilePatterns(c.AllowedRooms)
	return err
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("pattern", p).Wrapf(err, "invalid room pattern")
		}
		out = append(out, g)
	}
	return out, nil
}
