package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roamtools/roamsync/internal/config"
	"github.com/roamtools/roamsync/internal/roam"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "roamsync",
	Short: "Sync local markup files with a Roam Research graph",
	Long: `roamsync keeps locally-authored outline files in sync with Roam pages.

A push parses the local file, diffs it against the page's current state,
and applies the minimal set of block operations, so unchanged blocks keep
their identifiers and anything that references them stays intact.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration, exiting on a malformed file.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// backendClient validates backend settings and builds a client.
func backendClient(cfg *config.Config) *roam.Client {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	client := roam.NewClient(cfg.Graph, cfg.Token)
	client.BaseURL = cfg.APIURL
	return client
}
