// Package reanalysis re-runs the analysis chain for completed articles
// whose audit confidence fell below threshold.
package reanalysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/pipeline"
	"github.com/meridian-research/newsaudit/internal/store"
)

// Scheduler drains the low-confidence backlog in fixed-size batches.
type Scheduler struct {
	store     store.Store
	runner    *pipeline.Runner
	threshold int
	batchSize int
}

// New creates a scheduler. threshold is the confidence score below which an
// article is eligible; batchSize bounds each pass.
func New(st store.Store, runner *pipeline.Runner, threshold, batchSize int) *Scheduler {
	if batchSize < 1 {
		batchSize = 5
	}
	return &Scheduler{
		store:     st,
		runner:    runner,
		threshold: threshold,
		batchSize: batchSize,
	}
}

// Summary reports one scheduler run.
type Summary struct {
	Passes    int
	Processed int64
	Succeeded int64
	Failed    int64
}

// Run loops batches of eligible articles through the analysis chain until
// none remain. Each article is reanalyzed at most once per run, so articles
// that stay below threshold after a fresh pass do not spin the loop.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	log := zap.L().With(zap.Int("threshold", s.threshold), zap.Int("batch_size", s.batchSize))
	log.Info("starting reanalysis run")
	start := time.Now()

	var summary Summary
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "reanalysis: run cancelled")
		}

		candidates, err := s.store.ListArticles(ctx, store.Filter{
			BelowConfidence: &s.threshold,
			Limit:           s.batchSize + len(seen),
		})
		if err != nil {
			return summary, eris.Wrap(err, "reanalysis: list eligible articles")
		}

		batch := make([]model.Article, 0, s.batchSize)
		for _, a := range candidates {
			if seen[a.ID] {
				continue
			}
			batch = append(batch, a)
			if len(batch) == s.batchSize {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		// Reopen each article before reprocessing. The stored document stays
		// in place until fresh analysis replaces it.
		runnable := make([]model.Article, 0, len(batch))
		for i := range batch {
			a := batch[i]
			seen[a.ID] = true
			if err := s.store.UpdateAnalysis(ctx, a.ID, a.AnalysisResult, model.StatusPendingAnalysis); err != nil {
				zap.L().Error("failed to reopen article for reanalysis",
					zap.String("article_id", a.ID),
					zap.Error(err))
				summary.Failed++
				summary.Processed++
				continue
			}
			runnable = append(runnable, a)
		}

		batchSummary := s.runner.RunArticles(ctx, runnable)
		summary.Passes++
		summary.Processed += batchSummary.Processed
		summary.Succeeded += batchSummary.Succeeded
		summary.Failed += batchSummary.Failed
	}

	log.Info("reanalysis run complete",
		zap.Int("passes", summary.Passes),
		zap.Int64("processed", summary.Processed),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}
