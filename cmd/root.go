package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/food-access/svimap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "svimap",
	Short: "Choropleth styling service for census tract vulnerability maps",
	Long:  "Imports census tract geometry and CDC SVI attribute tables, computes class breaks, and serves styled GeoJSON layers for Leaflet front ends.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
