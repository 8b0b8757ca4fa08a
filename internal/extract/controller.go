package extract

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-research/newsaudit/internal/config"
	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/store"
)

// TextSource abstracts the fetcher so the controller's state machine can be
// tested without HTTP.
type TextSource interface {
	Fetch(ctx context.Context, link string) (*Extraction, error)
}

// Controller drives the extraction state machine: one fetch attempt and
// exactly one persistence write per invocation.
type Controller struct {
	store      store.Store
	source     TextSource
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
}

// NewController creates a Controller. A nil source gets a default Fetcher
// built from cfg.
func NewController(st store.Store, source TextSource, cfg config.ExtractConfig) *Controller {
	if source == nil {
		source = NewFetcher(
			time.Duration(cfg.FetchTimeoutSecs)*time.Second,
			cfg.UserAgent,
			cfg.MinTextLength,
		)
	}
	return &Controller{
		store:      st,
		source:     source,
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Duration(cfg.BaseRetryDelaySeconds) * time.Second,
		now:        time.Now,
	}
}

// Process runs one extraction attempt for the article. Terminal states are
// left untouched; every non-terminal invocation results in exactly one
// store write.
func (c *Controller) Process(ctx context.Context, a *model.Article) error {
	log := zap.L().With(zap.String("article", a.ID), zap.String("link", a.Link))

	if a.Status.Terminal() {
		log.Debug("extract: article in terminal state, skipping",
			zap.String("status", string(a.Status)))
		return nil
	}
	if a.Status != model.StatusPendingExtraction && a.Status != model.StatusPendingExtractionRetry {
		log.Debug("extract: article already extracted, skipping",
			zap.String("status", string(a.Status)))
		return nil
	}

	ext, err := c.source.Fetch(ctx, a.Link)
	switch {
	case err == nil:
		log.Info("extract: text extracted",
			zap.Int("length", len(ext.Text)),
			zap.Int("previous_retries", a.RetryCount))
		return c.store.UpdateExtraction(ctx, a.ID, store.ExtractionUpdate{
			Status:     model.StatusPendingAnalysis,
			Text:       ext.Text,
			Title:      ext.Title,
			RetryCount: 0,
		})

	case errors.Is(err, ErrRobotsDisallowed):
		// Policy violations are never retried.
		log.Info("extract: blocked by robots policy")
		return c.store.UpdateExtraction(ctx, a.ID, store.ExtractionUpdate{
			Status:     model.StatusExtractionBlocked,
			RetryCount: a.RetryCount,
		})

	case errors.Is(err, ErrNotExtractable):
		// Non-text deliverable: extraction is a no-op by design.
		log.Info("extract: non-text content, marked processed")
		return c.store.UpdateExtraction(ctx, a.ID, store.ExtractionUpdate{
			Status:     model.StatusProcessedDocument,
			RetryCount: a.RetryCount,
		})

	default:
		return c.scheduleRetry(ctx, a, err, log)
	}
}

// scheduleRetry increments the durable retry counter and either schedules
// the next attempt with exponential backoff or gives up.
func (c *Controller) scheduleRetry(ctx context.Context, a *model.Article, cause error, log *zap.Logger) error {
	retryCount := a.RetryCount + 1

	if retryCount >= c.maxRetries {
		log.Warn("extract: retries exhausted",
			zap.Int("retry_count", retryCount),
			zap.Error(cause))
		return c.store.UpdateExtraction(ctx, a.ID, store.ExtractionUpdate{
			Status:     model.StatusExtractionFailed,
			RetryCount: retryCount,
		})
	}

	next := c.now().UTC().Add(c.baseDelay * time.Duration(math.Pow(2, float64(retryCount))))
	log.Info("extract: attempt failed, retry scheduled",
		zap.Int("retry_count", retryCount),
		zap.Time("next_retry_at", next),
		zap.Error(cause))
	return c.store.UpdateExtraction(ctx, a.ID, store.ExtractionUpdate{
		Status:      model.StatusPendingExtractionRetry,
		RetryCount:  retryCount,
		NextRetryAt: &next,
	})
}

// Summary reports per-run batch counts.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunBatch selects up to limit extraction-eligible articles (pending plus
// due retries) and processes them with bounded concurrency. Item failures
// are logged, counted, and never abort the batch.
func (c *Controller) RunBatch(ctx context.Context, limit, concurrency int) (*Summary, error) {
	articles, err := c.store.ListArticles(ctx, store.Filter{
		ExtractionDue: true,
		Limit:         limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: list eligible articles")
	}

	if len(articles) == 0 {
		zap.L().Info("extract: no eligible articles")
		return &Summary{}, nil
	}

	if concurrency <= 0 {
		concurrency = 1
	}
	zap.L().Info("extract: processing batch",
		zap.Int("articles", len(articles)),
		zap.Int("concurrency", concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	for i := range articles {
		a := articles[i]
		g.Go(func() error {
			if err := c.Process(gctx, &a); err != nil {
				failed.Add(1)
				zap.L().Error("extract: article failed",
					zap.String("article", a.ID),
					zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		Processed: len(articles),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	zap.L().Info("extract: batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
