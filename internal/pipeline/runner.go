// Package pipeline chains analysis, conflict scoring, audit review, and
// confidence blending for articles that have extracted text.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-research/newsaudit/internal/analysis"
	"github.com/meridian-research/newsaudit/internal/audit"
	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/scorer"
	"github.com/meridian-research/newsaudit/internal/store"
)

// Runner executes the full analysis chain for one article at a time and
// batches over the pending_analysis backlog.
type Runner struct {
	store        store.Store
	orchestrator *analysis.Orchestrator
	scorer       *scorer.Scorer
	auditor      *audit.Auditor
	concurrency  int
}

// NewRunner wires the chain. concurrency bounds the article fan-out in
// RunBatch; values below 1 fall back to serial processing.
func NewRunner(st store.Store, orch *analysis.Orchestrator, sc *scorer.Scorer, aud *audit.Auditor, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		store:        st,
		orchestrator: orch,
		scorer:       sc,
		auditor:      aud,
		concurrency:  concurrency,
	}
}

// Process analyzes one article end to end: orchestrated worker fan-out,
// conflict scoring, audit review, confidence blend, persistence. The
// article must hold extracted text and be in a state that may move to
// analysis_complete.
func (r *Runner) Process(ctx context.Context, a *model.Article) error {
	log := zap.L().With(zap.String("article_id", a.ID))

	if a.Text == "" {
		return eris.Errorf("pipeline: article %s has no extracted text", a.ID)
	}

	start := time.Now()
	doc, partial, err := r.orchestrator.Run(ctx, a.Text)
	if err != nil {
		return eris.Wrapf(err, "pipeline: analyze article %s", a.ID)
	}
	doc.PartialFailure = partial

	score, conflicts := r.scorer.Score(doc)

	finalDoc, record, err := r.auditor.Review(ctx, score, conflicts, doc)
	if err != nil {
		return eris.Wrapf(err, "pipeline: audit article %s", a.ID)
	}

	overall := audit.OverallConfidence(a.SourceCredibility, finalDoc, record.ConfidenceScore)

	if err := r.store.UpdateAnalysis(ctx, a.ID, finalDoc, model.StatusAnalysisComplete); err != nil {
		return eris.Wrapf(err, "pipeline: store analysis %s", a.ID)
	}
	if err := r.store.UpdateAudit(ctx, a.ID, finalDoc, record, &overall); err != nil {
		return eris.Wrapf(err, "pipeline: store audit %s", a.ID)
	}

	log.Info("article analyzed",
		zap.Int("confidence_score", score),
		zap.Int("conflicts", len(conflicts)),
		zap.String("audit_decision", record.Decision),
		zap.Float64("overall_confidence", overall),
		zap.Bool("partial_failure", partial),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Summary reports one batch run.
type Summary struct {
	Processed int64
	Succeeded int64
	Failed    int64
}

// RunBatch processes up to limit pending_analysis articles concurrently.
// Individual failures are logged and counted, never abort the batch.
func (r *Runner) RunBatch(ctx context.Context, limit int) (Summary, error) {
	articles, err := r.store.ListArticles(ctx, store.Filter{
		Status: model.StatusPendingAnalysis,
		Limit:  limit,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: list pending articles")
	}
	return r.runOver(ctx, articles), nil
}

// RunArticles processes an explicit article set with the same concurrency
// and failure handling as RunBatch. Used by the reanalysis scheduler.
func (r *Runner) RunArticles(ctx context.Context, articles []model.Article) Summary {
	return r.runOver(ctx, articles)
}

func (r *Runner) runOver(ctx context.Context, articles []model.Article) Summary {
	if len(articles) == 0 {
		return Summary{}
	}

	log := zap.L().With(zap.Int("articles", len(articles)))
	log.Info("starting analysis batch")
	start := time.Now()

	var summary Summary
	summary.Processed = int64(len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var succeeded, failed atomic.Int64
	for i := range articles {
		a := articles[i]
		g.Go(func() error {
			if err := r.Process(gctx, &a); err != nil {
				zap.L().Error("article analysis failed",
					zap.String("article_id", a.ID),
					zap.Error(err))
				failed.Add(1)
				return nil // don't abort other articles
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary.Succeeded = succeeded.Load()
	summary.Failed = failed.Load()

	log.Info("analysis batch complete",
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary
}
