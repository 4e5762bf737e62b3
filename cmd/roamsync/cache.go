package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roamtools/roamsync/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local block cache",
	Long: `Manage the local SQLite cache of fetched blocks.

The cache serves repeated pulls and reference lookups without hitting
the backend. Entries past their TTL are refetched on demand and swept
by the watch daemon.`,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location and contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Cache: %s\n", cfg.CachePath)
		fmt.Printf("  Pages:  %d\n", stats.Pages)
		fmt.Printf("  Blocks: %d\n", stats.Blocks)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached block",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
