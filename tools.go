// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

//go:build tools
// +build tools

// Package main pins the PeerChat test tooling to go.mod: ginkgo and gomega
// drive the multi-node suite in test/integration/chat (run with
// -tags=integration), testify backs the package unit tests.
package main

import (
	// Integration suite
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"

	// Unit tests
	_ "github.com/stretchr/testify/assert"
	_ "github.com/stretchr/testify/require"
)
