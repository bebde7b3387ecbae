// Command lattice is the CLI and MCP entry point for the file-based,
// event-sourced task tracker. It never talks to a remote API: every
// subcommand opens the state directory directly and reuses the same
// task.Service/selector.Selector/integrity.Checker collaborators that
// the MCP server exposes over stdio and HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagRoot   string
	flagConfig string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lattice: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lattice",
	Short:   "File-based, event-sourced task tracker",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root override (default: $LATTICE_ROOT or upward search for .lattice)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "ambient config file override (default: $LATTICE_CONFIG or ./lattice.toml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(serveHTTPCmd)
}
