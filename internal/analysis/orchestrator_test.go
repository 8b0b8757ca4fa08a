package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/newsaudit/internal/model"
)

// fakeWorker records the input it saw and returns canned output.
type fakeWorker struct {
	kind model.Kind
	out  json.RawMessage
	err  error

	mu   sync.Mutex
	seen []Input
}

func (f *fakeWorker) Kind() model.Kind { return f.kind }

func (f *fakeWorker) Analyze(_ context.Context, in Input) (json.RawMessage, error) {
	f.mu.Lock()
	f.seen = append(f.seen, in)
	f.mu.Unlock()
	return f.out, f.err
}

func fullWorkerSet() (map[model.Kind]*fakeWorker, []Worker) {
	outputs := map[model.Kind]json.RawMessage{
		model.KindMetrics:      json.RawMessage(`{"entropy_relevance": 0.7, "key_figures": ["12%"]}`),
		model.KindEntities:     json.RawMessage(`{"entities": [{"name": "Acme", "type": "organization"}], "market_relevance": 0.6}`),
		model.KindSummary:      json.RawMessage(`{"text": "Acme grew 12% last quarter."}`),
		model.KindSentiment:    json.RawMessage(`{"score": 0.4, "intensity": "moderate"}`),
		model.KindStakeholders: json.RawMessage(`{"groups": [{"name": "shareholders", "impact": "positive", "primary": true}]}`),
		model.KindNeedsImpact:  json.RawMessage(`{"categories": ["economic_opportunity"], "severity": "low"}`),
	}

	fakes := make(map[model.Kind]*fakeWorker, len(outputs))
	var workers []Worker
	for kind, out := range outputs {
		f := &fakeWorker{kind: kind, out: out}
		fakes[kind] = f
		workers = append(workers, f)
	}
	return fakes, workers
}

func TestNewOrchestrator_RequiresFullKindCoverage(t *testing.T) {
	_, workers := fullWorkerSet()

	_, err := NewOrchestrator(workers[:3])
	assert.Error(t, err)

	_, err = NewOrchestrator(append(workers, workers[0]))
	assert.Error(t, err)

	_, err = NewOrchestrator(workers)
	assert.NoError(t, err)
}

func TestRun_ConsolidatesAllSections(t *testing.T) {
	_, workers := fullWorkerSet()
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	doc, partial, err := orch.Run(context.Background(), "Acme grew 12% last quarter.")
	require.NoError(t, err)
	assert.False(t, partial)

	kinds := append(append([]model.Kind{}, model.PhaseOneKinds...), model.PhaseTwoKinds...)
	for _, kind := range kinds {
		assert.True(t, doc.HasSection(kind), "section %s missing", kind)
	}
	assert.Equal(t, "Acme grew 12% last quarter.", doc.Summary.Text)
	assert.Equal(t, 0.4, *doc.Sentiment.Score)
}

func TestRun_PhaseTwoSeesDistilledContextOnly(t *testing.T) {
	fakes, workers := fullWorkerSet()
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	text := "Full article body with lots of detail."
	_, _, err = orch.Run(context.Background(), text)
	require.NoError(t, err)

	for _, kind := range model.PhaseOneKinds {
		in := fakes[kind].seen[0]
		assert.Equal(t, text, in.Text)
		assert.Empty(t, in.Summary)
	}
	for _, kind := range model.PhaseTwoKinds {
		in := fakes[kind].seen[0]
		assert.Empty(t, in.Text, "phase two worker %s must not see full text", kind)
		assert.Equal(t, "Acme grew 12% last quarter.", in.Summary)
		require.Len(t, in.Entities, 1)
		assert.Equal(t, "Acme", in.Entities[0].Name)
	}
}

func TestRun_FailedWorkerLeavesPlaceholder(t *testing.T) {
	fakes, workers := fullWorkerSet()
	fakes[model.KindSentiment].err = errors.New("timeout")
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	doc, partial, err := orch.Run(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, partial)
	require.NotNil(t, doc.Sentiment)
	assert.Equal(t, model.SectionStatusError, doc.Sentiment.Status)
	assert.False(t, doc.HasSection(model.KindSentiment))

	// Other sections are unaffected.
	assert.True(t, doc.HasSection(model.KindSummary))
	assert.True(t, doc.HasSection(model.KindStakeholders))
}

func TestRun_PhaseOneFailureStillRunsPhaseTwo(t *testing.T) {
	fakes, workers := fullWorkerSet()
	fakes[model.KindSummary].err = errors.New("timeout")
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	doc, partial, err := orch.Run(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.False(t, doc.HasSection(model.KindSummary))

	// Phase two ran with an empty summary.
	require.Len(t, fakes[model.KindSentiment].seen, 1)
	assert.Empty(t, fakes[model.KindSentiment].seen[0].Summary)
	assert.True(t, doc.HasSection(model.KindSentiment))
}

func TestRun_MalformedWorkerOutputBecomesPlaceholder(t *testing.T) {
	fakes, workers := fullWorkerSet()
	fakes[model.KindMetrics].out = json.RawMessage(`{"entropy_relevance": "not a number"}`)
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	doc, partial, err := orch.Run(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.False(t, doc.HasSection(model.KindMetrics))
}

func TestRun_CancelledContext(t *testing.T) {
	_, workers := fullWorkerSet()
	orch, err := NewOrchestrator(workers)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = orch.Run(ctx, "text")
	assert.Error(t, err)
}
