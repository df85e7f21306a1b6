// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/peerchat/peerchat/internal/protocol"
)

// NewSchemaCmd creates the schema command, which prints or writes the JSON
// Schema of the peer wire envelope.
func NewSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the peer wire protocol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := protocol.GenerateSchema()
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return oops.With("path", out).Wrapf(err, "create schema directory")
			}
			if err := os.WriteFile(out, schema, 0o600); err != nil {
				return oops.With("path", out).Wrapf(err, "write schema")
			}
			cmd.Printf("Generated %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}
