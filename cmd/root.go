package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "permitscope",
	Short: "Municipal building permit reconciliation pipeline",
	Long:  "Syncs permits, inspections, and certificates of occupancy from the city open-data portal into Postgres, reconciles amendment permits back to their base permits, and derives construction phase durations and contractor performance metrics.",
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
