// Package analysis runs the two-phase worker fan-out that turns extracted
// article text into a consolidated analysis document.
package analysis

import (
	"context"
	"encoding/json"

	"github.com/meridian-research/newsaudit/internal/model"
)

// Input is the material a worker analyzes. Phase-one workers receive the
// full article text; phase-two workers receive only the phase-one summary
// and identified entities.
type Input struct {
	Text     string
	Summary  string
	Entities []model.Entity
}

// Worker produces one section of the analysis document. Implementations
// must be safe for concurrent use; the orchestrator runs them in parallel
// within a phase.
type Worker interface {
	Kind() model.Kind
	Analyze(ctx context.Context, in Input) (json.RawMessage, error)
}
