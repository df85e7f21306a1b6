// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peerchat/peerchat/internal/config"
	"github.com/peerchat/peerchat/internal/xdg"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				var err error
				if path, err = xdg.ConfigFile(); err != nil {
					return err
				}
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after applying defaults, the config file and
flags. Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path != "" {
				if _, err := fmt.Fprintf(out, "# from %s\n", path); err != nil {
					return err
				}
			}
			_, err = out.Write(data)
			return err
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}
