package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "newsaudit",
	Short: "Article lifecycle and confidence audit pipeline",
	Long:  "Ingests article links, extracts text with durable retry, runs two-phase Claude analysis, scores internal conflicts, audits corrections, and reanalyzes low-confidence results.",
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
