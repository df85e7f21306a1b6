// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package xdg resolves PeerChat's XDG Base Directory paths.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "peerchat"

// base returns $env, or $HOME joined with fallback when env is unset.
func base(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").With("env", env).Wrapf(err, "resolve home directory")
		}
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// ConfigDir returns $XDG_CONFIG_HOME/peerchat, defaulting to ~/.config.
func ConfigDir() (string, error) {
	dir, err := base("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DataDir returns $XDG_DATA_HOME/peerchat, defaulting to ~/.local/share.
// Room logs and the node identity live here.
func DataDir() (string, error) {
	dir, err := base("XDG_DATA_HOME", ".local", "share")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// IdentityFile returns the path of the node's private key under dataDir.
func IdentityFile(dataDir string) string {
	return filepath.Join(dataDir, "identity.key")
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
