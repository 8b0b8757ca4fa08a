package main

import (
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-research/newsaudit/internal/analysis"
	"github.com/meridian-research/newsaudit/internal/audit"
	"github.com/meridian-research/newsaudit/internal/pipeline"
	"github.com/meridian-research/newsaudit/internal/scorer"
	"github.com/meridian-research/newsaudit/internal/store"
	"github.com/meridian-research/newsaudit/pkg/anthropic"
)

// buildRunner wires the analysis chain from config: Claude workers behind a
// shared rate limiter, the conflict scorer, and the audit reviewer.
func buildRunner(st store.Store) (*pipeline.Runner, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (NEWSAUDIT_ANTHROPIC_KEY)")
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	timeout := time.Duration(cfg.Analysis.WorkerTimeoutSecs) * time.Second

	burst := int(cfg.Analysis.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Analysis.RequestsPerSecond), burst)

	workers, err := analysis.NewClaudeWorkers(client, cfg.Anthropic.Model, limiter, timeout)
	if err != nil {
		return nil, err
	}
	orch, err := analysis.NewOrchestrator(workers)
	if err != nil {
		return nil, err
	}

	scorerCfg := scorer.DefaultConfig()
	if err := scorer.Validate(scorerCfg); err != nil {
		return nil, err
	}

	auditor := audit.New(audit.NewClaudeCorrector(client, cfg.Anthropic.Model, limiter, timeout))

	return pipeline.NewRunner(st, orch, scorer.New(scorerCfg), auditor, cfg.Batch.MaxConcurrentArticles), nil
}
