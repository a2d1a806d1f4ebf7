package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/discoverymap/internal/pkg/config"
	"github.com/samirrijal/discoverymap/internal/pkg/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "devicesim",
	Short: "Simulated device geolocation for the discovery map",
	Long:  "Publishes device fixes and location failures on NATS so map sessions can be exercised without a phone.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load("discoverymap-devicesim")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if url, _ := cmd.Flags().GetString("nats-url"); url != "" {
			cfg.NATS.URL = url
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("nats-url", "", "NATS server url (overrides config)")
	rootCmd.PersistentFlags().String("device", "sim-1", "device id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("devicesim failed", "error", err)
		os.Exit(1)
	}
}
