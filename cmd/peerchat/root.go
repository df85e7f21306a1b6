// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the peerchat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peerchat",
		Short: "PeerChat - serverless peer-to-peer chat rooms",
		Long: `PeerChat joins named chat rooms on a peer-to-peer overlay. Peers in a
room exchange messages directly and backfill each other's history; each
node keeps a local log per room.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/peerchat/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
