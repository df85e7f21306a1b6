// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/pkg/errutil"
)

// isolate points the XDG directories at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)

	cfg, path, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	want := Default()
	want.DataDir = filepath.Join(dir, "data", "peerchat")
	assert.Equal(t, want, cfg)
}

func TestLoad_DefaultFileLocation(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config", "peerchat", "config.yaml")
	writeFile(t, path, "username: alice\n")

	cfg, used, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "alice", cfg.Username)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
username: bob
data_dir: /srv/peerchat
log:
  format: text
  level: debug
overlay:
  listen_addrs: [/ip4/0.0.0.0/tcp/4001]
  mdns: false
  mqtt:
    broker: tcp://broker.local:1883
chat:
  history_chunk_size: 25
  history_timeout: 45s
  allowed_rooms: ["team-*"]
  autojoin: [general, random]
api:
  addr: ""
`)

	cfg, used, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "/srv/peerchat", cfg.DataDir)
	assert.Equal(t, LogConfig{Format: "text", Level: "debug"}, cfg.Log)
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/4001"}, cfg.Overlay.ListenAddrs)
	assert.False(t, cfg.Overlay.MDNS)
	assert.Equal(t, "tcp://broker.local:1883", cfg.Overlay.MQTT.Broker)
	assert.Equal(t, "peerchat", cfg.Overlay.MQTT.TopicPrefix, "unset keys keep defaults")
	assert.Equal(t, 25, cfg.Chat.HistoryChunkSize)
	assert.Equal(t, 45*time.Second, cfg.Chat.HistoryTimeout)
	assert.Equal(t, Default().Chat.WriteTimeout, cfg.Chat.WriteTimeout)
	assert.Equal(t, []string{"team-*"}, cfg.Chat.AllowedRooms)
	assert.Equal(t, []string{"general", "random"}, cfg.Chat.Autojoin)
	assert.Empty(t, cfg.API.Addr)
	assert.Equal(t, Default().Telnet, cfg.Telnet)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "username: bob\nlog:\n  level: debug\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--username", "carol", "--join", "a,b", "--dht"}))

	cfg, _, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Username)
	assert.Equal(t, "debug", cfg.Log.Level, "unset flags do not override the file")
	assert.Equal(t, []string{"a", "b"}, cfg.Chat.Autojoin)
	assert.True(t, cfg.Overlay.DHT)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, _, err := Load("/nonexistent/peerchat.yaml", nil)
	errutil.AssertErrorCode(t, err, "CONFIG_NOT_FOUND")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log format", "log:\n  format: xml\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"zero chunk size", "chat:\n  history_chunk_size: 0\n"},
		{"no listen addrs", "overlay:\n  listen_addrs: []\n"},
		{"bad api addr", "api:\n  addr: not-an-addr\n"},
		{"empty username", "username: \"\"\n"},
		{"bad listen multiaddr", "overlay:\n  listen_addrs: [\"tcp://0.0.0.0:4001\"]\n"},
		{"peer without id", "overlay:\n  peers: [\"/ip4/10.0.0.2/tcp/4001\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "bad.yaml")
			writeFile(t, path, tt.content)

			_, _, err := Load(path, nil)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "out", "config.yaml")

	require.NoError(t, WriteDefault(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, _, err := Load(path, nil)
	require.NoError(t, err)
	want := Default()
	want.DataDir = cfg.DataDir
	assert.Equal(t, want, cfg)

	err = WriteDefault(path, false)
	errutil.AssertErrorCode(t, err, "CONFIG_EXISTS")
	require.NoError(t, WriteDefault(path, true))
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Overlay.MQTT.Password = "hunter2"

	out := cfg.Redacted()
	assert.Equal(t, "REDACTED", out.Overlay.MQTT.Password)
	assert.Equal(t, "hunter2", cfg.Overlay.MQTT.Password)

	data, err := Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}
