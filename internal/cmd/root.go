// Package cmd wires the signon CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signon",
	Short: "Terminal login screen for a hosted identity service",
	Long: `signon is a terminal login screen that delegates all identity and
session logic to a hosted identity service. It mirrors the service's
session state into the UI: a loading state while the session resolves,
a signed-out state offering sign-in through your identity provider,
and a signed-in state showing who you are.

Configuration lives at ~/.signon/config.yaml and can be overridden
with SIGNON_* environment variables.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.signon/config.yaml)")
}
