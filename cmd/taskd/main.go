// Package main implements the taskd binary: the orchestration daemon
// (serve) plus local queue operations (dispatch, status, process).
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// configPath overrides the default config file location.
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskd",
	Short: "Durable task orchestration daemon",
	Long: `taskd maintains a durable task ledger, dispatches tasks to workers
under a bounded concurrency limit, and validates worker output for
groundedness and gaming patterns before accepting it.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/taskd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(processCmd)
}
