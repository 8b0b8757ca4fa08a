package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/pipeline"
)

var (
	conflictBackfillLimit   int
	confidenceBackfillLimit int
)

var conflictBackfillCmd = &cobra.Command{
	Use:   "conflict-backfill",
	Short: "Score and audit stored documents without an audit record",
	Long: `Runs the conflict scorer and audit review over analysis documents
persisted before auditing existed. The stored text is not re-fetched and the
workers are not re-run; only the scoring chain executes.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBackfill(cmd, func(ctx context.Context, r *pipeline.Runner) (pipeline.Summary, error) {
			return r.BackfillConflicts(ctx, conflictBackfillLimit)
		})
	},
}

var confidenceBackfillCmd = &cobra.Command{
	Use:   "confidence-backfill",
	Short: "Compute missing overall confidence blends",
	Long: `Applies the confidence blend to audited articles that never got an
overall confidence. Pure recomputation from stored data; no API key needed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := pipeline.BackfillConfidence(ctx, st, confidenceBackfillLimit)
		if err != nil {
			return err
		}
		logBackfillSummary(summary)
		return nil
	},
}

func init() {
	conflictBackfillCmd.Flags().IntVar(&conflictBackfillLimit, "limit", 100, "maximum articles per run")
	confidenceBackfillCmd.Flags().IntVar(&confidenceBackfillLimit, "limit", 100, "maximum articles per run")
	rootCmd.AddCommand(conflictBackfillCmd)
	rootCmd.AddCommand(confidenceBackfillCmd)
}

func runBackfill(cmd *cobra.Command, fn func(context.Context, *pipeline.Runner) (pipeline.Summary, error)) error {
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

	summary, err := fn(ctx, runner)
	if err != nil {
		return err
	}
	logBackfillSummary(summary)
	return nil
}

func logBackfillSummary(summary pipeline.Summary) {
	zap.L().Info("backfill complete",
		zap.Int64("processed", summary.Processed),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
	)
}
