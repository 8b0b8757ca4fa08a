package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/audit"
	"github.com/meridian-research/newsaudit/internal/store"
)

// BackfillConflicts scores and audits stored analysis documents that were
// persisted before the audit stage existed. Each article gets a full
// score, review, and confidence blend from its existing document.
func (r *Runner) BackfillConflicts(ctx context.Context, limit int) (Summary, error) {
	articles, err := r.store.ListArticles(ctx, store.Filter{
		MissingAuditRecord: true,
		Limit:              limit,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: list unaudited articles")
	}

	var summary Summary
	summary.Processed = int64(len(articles))

	for i := range articles {
		a := &articles[i]
		if a.AnalysisResult == nil {
			continue
		}

		score, conflicts := r.scorer.Score(a.AnalysisResult)
		finalDoc, record, err := r.auditor.Review(ctx, score, conflicts, a.AnalysisResult)
		if err != nil {
			zap.L().Error("conflict backfill failed",
				zap.String("article_id", a.ID),
				zap.Error(err))
			summary.Failed++
			continue
		}

		overall := audit.OverallConfidence(a.SourceCredibility, finalDoc, record.ConfidenceScore)
		if err := r.store.UpdateAudit(ctx, a.ID, finalDoc, record, &overall); err != nil {
			zap.L().Error("conflict backfill write failed",
				zap.String("article_id", a.ID),
				zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}

	zap.L().Info("conflict backfill complete",
		zap.Int64("processed", summary.Processed),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}

// BackfillConfidence computes the blended overall confidence for audited
// articles that never got one. The stored document and audit record are
// kept as-is; only the blend is written. It needs no analysis chain, only
// the store.
func BackfillConfidence(ctx context.Context, st store.Store, limit int) (Summary, error) {
	articles, err := st.ListArticles(ctx, store.Filter{
		MissingOverallConfidence: true,
		Limit:                    limit,
	})
	if err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: list articles without confidence")
	}

	var summary Summary
	summary.Processed = int64(len(articles))

	for i := range articles {
		a := &articles[i]
		if a.AnalysisResult == nil || a.AuditRecord == nil {
			continue
		}

		overall := audit.OverallConfidence(a.SourceCredibility, a.AnalysisResult, a.AuditRecord.ConfidenceScore)
		if err := st.UpdateAudit(ctx, a.ID, a.AnalysisResult, a.AuditRecord, &overall); err != nil {
			zap.L().Error("confidence backfill write failed",
				zap.String("article_id", a.ID),
				zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}

	zap.L().Info("confidence backfill complete",
		zap.Int64("processed", summary.Processed),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}
