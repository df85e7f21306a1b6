// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCommand_Stdout(t *testing.T) {
	out, err := runRoot(t, "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &doc))
	assert.Contains(t, out, "history_chunk")
}

func TestSchemaCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas", "wire.schema.json")

	out, err := runRoot(t, "schema", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}
