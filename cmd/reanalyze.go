package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/reanalysis"
)

var (
	reanalyzeThreshold int
	reanalyzeBatchSize int
)

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Re-run analysis for low-confidence articles",
	Long: `Finds analysis_complete articles whose audit confidence score fell
below the threshold and reruns the full analysis chain for each, in batches,
until no eligible articles remain. Each article is reanalyzed at most once
per run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := buildRunner(st)
		if err != nil {
			return err
		}

		threshold := intFlagOr(cmd, "threshold", reanalyzeThreshold, cfg.Reanalysis.Threshold)
		batchSize := intFlagOr(cmd, "batch-size", reanalyzeBatchSize, cfg.Reanalysis.BatchSize)

		scheduler := reanalysis.New(st, runner, threshold, batchSize)
		summary, err := scheduler.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("reanalyze complete",
			zap.Int("passes", summary.Passes),
			zap.Int64("processed", summary.Processed),
			zap.Int64("succeeded", summary.Succeeded),
			zap.Int64("failed", summary.Failed),
		)
		return nil
	},
}

// intFlagOr returns value when the flag was set on the command line,
// otherwise the config fallback.
func intFlagOr(cmd *cobra.Command, name string, value, fallback int) int {
	if cmd.Flags().Changed(name) {
		return value
	}
	return fallback
}

func init() {
	reanalyzeCmd.Flags().IntVar(&reanalyzeThreshold, "threshold", 0, "confidence threshold override")
	reanalyzeCmd.Flags().IntVar(&reanalyzeBatchSize, "batch-size", 0, "batch size override")
	rootCmd.AddCommand(reanalyzeCmd)
}
