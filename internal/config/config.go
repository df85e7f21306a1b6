// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package config holds the peerchat node configuration and its loader.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/chat"
	"github.com/peerchat/peerchat/internal/overlay/p2p"
	chatpeer "github.com/peerchat/peerchat/internal/peer"
	"github.com/peerchat/peerchat/internal/protocol"
)

// Config is the resolved configuration of one node.
type Config struct {
	Username string        `koanf:"username" yaml:"username" validate:"required,max=64"`
	DataDir  string        `koanf:"data_dir" yaml:"data_dir"`
	Log      LogConfig     `koanf:"log" yaml:"log"`
	Overlay  OverlayConfig `koanf:"overlay" yaml:"overlay"`
	Chat     ChatConfig    `koanf:"chat" yaml:"chat"`
	API      Listener      `koanf:"api" yaml:"api"`
	Telnet   Listener      `koanf:"telnet" yaml:"telnet"`
	Metrics  Listener      `koanf:"metrics" yaml:"metrics"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" validate:"oneof=json text"`
	Level  string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// OverlayConfig configures the libp2p host and peer discovery.
type OverlayConfig struct {
	ListenAddrs []string   `koanf:"listen_addrs" yaml:"listen_addrs" validate:"min=1,dive,required"`
	NAT         bool       `koanf:"nat" yaml:"nat"`
	MDNS        bool       `koanf:"mdns" yaml:"mdns"`
	DHT         bool       `koanf:"dht" yaml:"dht"`
	Bootstrap   []string   `koanf:"bootstrap" yaml:"bootstrap,omitempty" validate:"dive,required"`
	Peers       []string   `koanf:"peers" yaml:"peers,omitempty" validate:"dive,required"`
	MQTT        MQTTConfig `koanf:"mqtt" yaml:"mqtt"`
}

// MQTTConfig configures rendezvous through an MQTT broker. An empty broker
// disables it.
type MQTTConfig struct {
	Broker      string `koanf:"broker" yaml:"broker" validate:"omitempty,url"`
	Username    string `koanf:"username" yaml:"username"`
	Password    string `koanf:"password" yaml:"password"`
	TopicPrefix string `koanf:"topic_prefix" yaml:"topic_prefix" validate:"required_with=Broker"`
}

// ChatConfig tunes the chat engine.
type ChatConfig struct {
	HistoryChunkSize int           `koanf:"history_chunk_size" yaml:"history_chunk_size" validate:"gte=1,lte=1000"`
	WriteTimeout     time.Duration `koanf:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	HistoryTimeout   time.Duration `koanf:"history_timeout" yaml:"history_timeout" validate:"gt=0"`
	SendQueue        int           `koanf:"send_queue" yaml:"send_queue" validate:"gte=1"`
	MaxFrameBytes    int           `koanf:"max_frame_bytes" yaml:"max_frame_bytes" validate:"gte=1024"`
	WelcomeMessage   string        `koanf:"welcome_message" yaml:"welcome_message"`
	AllowedRooms     []string      `koanf:"allowed_rooms" yaml:"allowed_rooms,omitempty"`
	Autojoin         []string      `koanf:"autojoin" yaml:"autojoin" validate:"dive,required"`
}

// Listener is a TCP listen address. Empty disables the listener.
type Listener struct {
	Addr string `koanf:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Username: chat.DefaultUsername,
		Log:      LogConfig{Format: "json", Level: "info"},
		Overlay: OverlayConfig{
			ListenAddrs: append([]string(nil), p2p.DefaultListenAddrs...),
			NAT:         true,
			MDNS:        true,
			MQTT:        MQTTConfig{TopicPrefix: p2p.DefaultMQTTTopicPrefix},
		},
		Chat: ChatConfig{
			HistoryChunkSize: protocol.DefaultChunkSize,
			WriteTimeout:     chatpeer.DefaultWriteTimeout,
			HistoryTimeout:   chat.DefaultHistoryTimeout,
			SendQueue:        chatpeer.DefaultSendQueue,
			MaxFrameBytes:    chatpeer.DefaultMaxFrameBytes,
			Autojoin:         []string{"lobby"},
		},
		API:     Listener{Addr: "127.0.0.1:8080"},
		Telnet:  Listener{Addr: "127.0.0.1:4201"},
		Metrics: Listener{Addr: "127.0.0.1:9100"},
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "invalid configuration")
	}
	return c.Overlay.validateAddrs()
}

// validateAddrs checks that every overlay address parses as a multiaddr and
// that dial targets name a peer.
func (o OverlayConfig) validateAddrs() error {
	for _, a := range o.ListenAddrs {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return oops.Code("CONFIG_INVALID").With("listen_addr", a).Wrapf(err, "invalid listen address")
		}
	}
	for _, a := range append(append([]string(nil), o.Bootstrap...), o.Peers...) {
		if _, err := peer.AddrInfoFromString(a); err != nil {
			return oops.Code("CONFIG_INVALID").With("peer_addr", a).Wrapf(err, "invalid peer address")
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Overlay.MQTT.Password != "" {
		c.Overlay.MQTT.Password = "REDACTED"
	}
	return c
}
