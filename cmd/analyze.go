package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeLimit int

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze articles awaiting analysis",
	Long: `Runs the two-phase worker fan-out over pending_analysis articles,
scores each consolidated document for internal conflicts, passes it through
audit review, and stores the blended overall confidence.`,
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

		summary, err := runner.RunBatch(ctx, analyzeLimit)
		if err != nil {
			return err
		}

		zap.L().Info("analyze complete",
			zap.Int64("processed", summary.Processed),
			zap.Int64("succeeded", summary.Succeeded),
			zap.Int64("failed", summary.Failed),
		)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 20, "maximum articles per run")
	rootCmd.AddCommand(analyzeCmd)
}
