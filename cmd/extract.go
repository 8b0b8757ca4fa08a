package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/extract"
)

var extractLimit int

var extractCmd = &cobra.Command{
	Use:   "extract-retry",
	Short: "Run one extraction pass over due articles",
	Long: `Selects pending_extraction articles plus pending_extraction_retry
articles whose backoff has elapsed, fetches and converts each page, and
advances the article's lifecycle state. Failed fetches are rescheduled
with exponential backoff until the retry budget is exhausted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		controller := extract.NewController(st, nil, cfg.Extract)
		summary, err := controller.RunBatch(ctx, extractLimit, cfg.Batch.MaxConcurrentArticles)
		if err != nil {
			return err
		}

		zap.L().Info("extraction pass complete",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractLimit, "limit", 50, "maximum articles per pass")
	rootCmd.AddCommand(extractCmd)
}
