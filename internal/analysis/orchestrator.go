package analysis

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-research/newsaudit/internal/model"
)

// Orchestrator fans article text out over the fixed worker set in two
// phases. Phase one sees the full text; phase two sees only the phase-one
// summary and entities. The phase split is a strict barrier.
type Orchestrator struct {
	phaseOne []Worker
	phaseTwo []Worker
}

// NewOrchestrator partitions workers by the fixed phase registries. Every
// phase kind must be covered exactly once.
func NewOrchestrator(workers []Worker) (*Orchestrator, error) {
	byKind := make(map[model.Kind]Worker, len(workers))
	for _, w := range workers {
		if _, dup := byKind[w.Kind()]; dup {
			return nil, eris.Errorf("analysis: duplicate worker for kind %q", w.Kind())
		}
		byKind[w.Kind()] = w
	}

	o := &Orchestrator{}
	for _, kind := range model.PhaseOneKinds {
		w, ok := byKind[kind]
		if !ok {
			return nil, eris.Errorf("analysis: missing worker for kind %q", kind)
		}
		o.phaseOne = append(o.phaseOne, w)
	}
	for _, kind := range model.PhaseTwoKinds {
		w, ok := byKind[kind]
		if !ok {
			return nil, eris.Errorf("analysis: missing worker for kind %q", kind)
		}
		o.phaseTwo = append(o.phaseTwo, w)
	}
	return o, nil
}

// Run analyzes text and returns the consolidated document plus a partial
// failure flag. A failed worker leaves an error placeholder under its key
// and never aborts the run; the only hard errors are context cancellation
// and an unusable result set.
func (o *Orchestrator) Run(ctx context.Context, text string) (*model.Document, bool, error) {
	doc := &model.Document{}
	var mu sync.Mutex
	partialFailure := false

	runPhase := func(workers []Worker, in Input) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, w := range workers {
			g.Go(func() error {
				raw, err := w.Analyze(gctx, in)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					zap.L().Warn("analysis worker failed",
						zap.String("kind", string(w.Kind())),
						zap.Error(err))
					doc.MarkFailed(w.Kind())
					partialFailure = true
					return nil
				}
				if err := doc.SetSection(w.Kind(), raw); err != nil {
					zap.L().Warn("analysis worker output rejected",
						zap.String("kind", string(w.Kind())),
						zap.Error(err))
					doc.MarkFailed(w.Kind())
					partialFailure = true
				}
				return nil
			})
		}
		return g.Wait()
	}

	if err := runPhase(o.phaseOne, Input{Text: text}); err != nil {
		return nil, false, eris.Wrap(err, "analysis: phase one")
	}
	if err := ctx.Err(); err != nil {
		return nil, false, eris.Wrap(err, "analysis: phase barrier")
	}

	// Phase two works from distilled context only, even when phase one
	// partially failed.
	phaseTwoIn := Input{}
	if doc.Summary != nil {
		phaseTwoIn.Summary = doc.Summary.Text
	}
	if doc.Entities != nil {
		phaseTwoIn.Entities = doc.Entities.Entities
	}

	if err := runPhase(o.phaseTwo, phaseTwoIn); err != nil {
		return nil, false, eris.Wrap(err, "analysis: phase two")
	}

	return doc, partialFailure, nil
}
