// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package p2p

import (
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
)

// LoadOrCreateIdentity reads the Ed25519 host key at path, generating and
// saving a new one if the file does not exist. A stable key keeps the peer
// ID stable across restarts.
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, oops.Code(core.CodeOverlay).With("path", path).Wrapf(err, "decode identity key")
		}
		return key, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, oops.Code(core.CodeOverlay).With("path", path).Wrapf(err, "read identity key")
	}

	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, oops.Code(core.CodeOverlay).Wrapf(err, "generate identity key")
	}
	data, err = crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, oops.Code(core.CodeOverlay).Wrapf(err, "encode identity key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("path", path).Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, oops.Code(core.CodeOverlay).With("path", path).Wrapf(err, "write identity key")
	}
	return key, nil
}
