package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backrun",
	Short: "Run a markdown backlog to completion",
	Long: `backrun executes the tasks in a markdown backlog.

It parses a BACKLOG.md table into tasks, orders them by dependency,
priority, and score, runs each one through the configured runner, and
records every attempt in a local SQLite database. Transient failures
are retried with exponential backoff; repeated terminal failures halt
the run with an actionable message.

Run it from a project directory containing a BACKLOG.md, or point it
at one with --backlog. With no subcommand it prints the current status.`,
	SilenceUsage: true,
	RunE:         runStatus,
}

// Execute runs the root command and exits non-zero on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
