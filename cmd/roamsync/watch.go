package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roamtools/roamsync/internal/cache"
	"github.com/roamtools/roamsync/internal/daemon"
	"github.com/roamtools/roamsync/internal/dashboard"
	"github.com/roamtools/roamsync/internal/sync"
)

var (
	watchDir       string
	watchDashboard bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and push page files as they change",
	Long: `Watch runs the sync daemon in the foreground.

Every .md file in the watched directory is pushed once at startup, then
changed files are pushed as they settle. Stale cache entries are swept
periodically. With --dashboard, sync activity is also broadcast over
WebSocket for live monitoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := backendClient(cfg)

		if watchDir == "" {
			watchDir = cfg.WatchDir
		}

		// Log to stderr, and to a rotated file when configured.
		var out io.Writer = os.Stderr
		if cfg.LogFile != "" {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			})
		}
		logger := log.New(out, "[daemon] ", log.LstdFlags)

		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		var events *dashboard.Handler
		if watchDashboard {
			server := dashboard.NewServer(cfg.DashboardAddr, logger)
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()
			events = dashboard.NewHandler(server, logger)
		}

		syncer := sync.New(client, log.New(out, "[sync] ", log.LstdFlags))

		dcfg := daemon.DefaultConfig()
		dcfg.DebounceInterval = cfg.Debounce
		dcfg.CacheTTL = cfg.CacheTTL
		dcfg.Logger = logger

		d, err := daemon.New(syncer, store, events, watchDir, dcfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch (default: watch_dir from config)")
	watchCmd.Flags().BoolVar(&watchDashboard, "dashboard", false, "broadcast sync activity over WebSocket")
	rootCmd.AddCommand(watchCmd)
}
