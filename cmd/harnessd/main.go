// Package main implements the harnessd CLI for running checkpointed
// agent sessions.
//
// harnessd drives one run per invocation: the first run against a session
// initializes its durable state, every later run performs one bounded
// increment of work and leaves a checkpoint behind. State lives in the
// configured memory backend, so runs survive process restarts.
//
// Usage:
//
//	# Initialize a session and perform the first increment
//	harnessd run --session widget --objective "ship the widget" --features features.json
//
//	# Perform the next increment
//	harnessd run --session widget
//
//	# Inspect session state
//	harnessd status --session widget
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harnessd",
	Short: "Checkpointed agent run harness",
	Long: `harnessd runs long tasks as a sequence of small, checkpointed increments.
Each invocation performs exactly one phase: session initialization on the
first run, one feature increment on every run after that.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("harnessd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/harnessd/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
