package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roamtools/roamsync/internal/dashboard"
)

var dashboardAddr string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Run the sync dashboard server standalone",
	Long: `Run the WebSocket dashboard server without the watch daemon.

Clients connect to ws://<addr>/ws and receive page sync, error, and
cache sweep events as JSON messages. Mostly useful for developing
dashboard frontends; "watch --dashboard" runs both together.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if dashboardAddr == "" {
			dashboardAddr = cfg.DashboardAddr
		}

		server := dashboard.NewServer(dashboardAddr, nil)
		if err := server.Start(); err != nil {
			return err
		}
		fmt.Printf("Dashboard running at http://%s (Ctrl-C to stop)\n", server.GetAddr())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return server.Stop()
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", "", "listen address (default: dashboard_addr from config)")
	rootCmd.AddCommand(dashboardCmd)
}
