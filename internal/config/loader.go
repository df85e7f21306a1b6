// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/peerchat/peerchat/internal/xdg"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"username":     "username",
	"data-dir":     "data_dir",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"listen":       "overlay.listen_addrs",
	"mdns":         "overlay.mdns",
	"dht":          "overlay.dht",
	"bootstrap":    "overlay.bootstrap",
	"peer":         "overlay.peers",
	"mqtt-broker":  "overlay.mqtt.broker",
	"join":         "chat.autojoin",
	"api-addr":     "api.addr",
	"telnet-addr":  "telnet.addr",
	"metrics-addr": "metrics.addr",
}

// BindFlags registers the overridable settings on fs. Flag defaults are the
// built-in defaults; only flags set by the user override file values.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("username", d.Username, "name shown on sent messages")
	fs.String("data-dir", "", "data directory (default: XDG_DATA_HOME/peerchat)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.StringSlice("listen", d.Overlay.ListenAddrs, "libp2p listen multiaddrs")
	fs.Bool("mdns", d.Overlay.MDNS, "discover peers on the local network")
	fs.Bool("dht", d.Overlay.DHT, "discover peers through the Kademlia DHT")
	fs.StringSlice("bootstrap", nil, "DHT bootstrap multiaddrs")
	fs.StringSlice("peer", nil, "static peer multiaddrs to dial in every room")
	fs.String("mqtt-broker", "", "MQTT broker URL for rendezvous")
	fs.StringSlice("join", d.Chat.Autojoin, "rooms to join at startup")
	fs.String("api-addr", d.API.Addr, "HTTP API listen address (empty = disabled)")
	fs.String("telnet-addr", d.Telnet.Addr, "telnet console listen address (empty = disabled)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// Load resolves the configuration: built-in defaults, then the config file,
// then flags the user set. An empty path reads the default file if it
// exists; an explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, string, error) {
	k := koanf.New(".")

	defaults, err := yamlv3.Marshal(Default())
	if err != nil {
		return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "encode defaults")
	}
	if err := k.Load(rawYAML(defaults), yaml.Parser()); err != nil {
		return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load defaults")
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, "", err
	}
	if resolved != "" {
		if err := k.Load(file.Provider(resolved), yaml.Parser()); err != nil {
			return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").With("path", resolved).Wrapf(err, "read config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "apply flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, "", oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode config")
	}
	if cfg.DataDir == "" {
		if cfg.DataDir, err = xdg.DataDir(); err != nil {
			return Config{}, "", err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, resolved, nil
}

// resolvePath returns the file to read, or "" when the default file is
// absent.
func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrapf(err, "config file")
		}
		return path, nil
	}
	def, err := xdg.ConfigFile()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(def); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", oops.Code("CONFIG_NOT_FOUND").With("path", def).Wrapf(err, "config file")
	}
	return def, nil
}

// WriteDefault writes the built-in configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("config file already exists")
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// rawYAML is a koanf provider over an in-memory document.
type rawYAML []byte

func (r rawYAML) ReadBytes() ([]byte, error) { return r, nil }

func (r rawYAML) Read() (map[string]any, error) {
	return nil, errors.New("rawYAML provider requires a parser")
}
