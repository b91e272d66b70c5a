package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authsyncd",
		Short: "authsyncd - authentication session synchronizer",
		Long: `authsyncd keeps an authentication session in sync with its backend:
it consumes the backend's auth event stream, loads user profiles, and
dispatches credential actions, exposing the reconciled state over
metrics and health endpoints.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
