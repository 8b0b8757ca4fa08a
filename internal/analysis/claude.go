package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/resilience"
	"github.com/meridian-research/newsaudit/pkg/anthropic"
)

// Per-kind system prompts. Each worker asks for a single JSON object
// matching its section schema; advisory flags signal weak grounding rather
// than failure.
var workerPrompts = map[model.Kind]string{
	model.KindMetrics: `You extract quantitative metrics from news articles. Respond with a single JSON object:
{"entropy_relevance": <0..1, how much genuinely new information the article carries>, "key_figures": ["<notable numbers with units and context>"], "flags": []}
Add "insufficient_data" to flags when the article carries too few figures to judge. Add "speculative_inference" when your values rest on reading between the lines.`,

	model.KindEntities: `You identify entities in news articles. Respond with a single JSON object:
{"entities": [{"name": "...", "type": "person|organization|location|instrument|other"}], "market_relevance": <0..1, how relevant the article is to markets>, "flags": []}
Leave entities empty when no concrete entities appear. Use the same advisory flags: "insufficient_data", "speculative_inference".`,

	model.KindSummary: `You summarize news articles. Respond with a single JSON object:
{"text": "<4-6 sentence factual summary>", "flags": []}
The summary must only contain claims made by the article. Add "speculative_inference" to flags if you had to interpolate.`,

	model.KindSentiment: `You score the sentiment of a news story from its summary and entities. Respond with a single JSON object:
{"score": <-1..1, negative to positive>, "intensity": "weak|moderate|strong", "flags": []}
Intensity reflects how forcefully the story carries its sentiment, independent of direction. Advisory flags: "insufficient_data", "speculative_inference".`,

	model.KindStakeholders: `You identify stakeholder groups affected by a news story from its summary and entities. Respond with a single JSON object:
{"groups": [{"name": "...", "impact": "positive|negative|neutral", "primary": <true for the single most affected group>}], "flags": []}
Mark at most one group primary. Advisory flags: "insufficient_data", "speculative_inference".`,

	model.KindNeedsImpact: `You assess which human needs a news story affects, from its summary and entities. Respond with a single JSON object:
{"categories": ["basic_stability", "economic_opportunity", "health", "community", "information_access"], "severity": "low|moderate|high", "flags": []}
Only include categories the story concretely touches. Advisory flags: "insufficient_data", "speculative_inference".`,
}

// claudeWorker is one Anthropic-backed analysis worker. All workers share a
// rate limiter so concurrent fan-out stays inside the API budget.
type claudeWorker struct {
	kind    model.Kind
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClaudeWorker builds a worker for kind. Unknown kinds return an error
// at construction rather than at analysis time.
func NewClaudeWorker(kind model.Kind, client anthropic.Client, modelID string, limiter *rate.Limiter, timeout time.Duration) (Worker, error) {
	if _, ok := workerPrompts[kind]; !ok {
		return nil, eris.Errorf("analysis: no prompt for kind %q", kind)
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &claudeWorker{
		kind:    kind,
		client:  client,
		model:   modelID,
		limiter: limiter,
		timeout: timeout,
	}, nil
}

// NewClaudeWorkers builds the full fixed worker set, one per analysis kind.
func NewClaudeWorkers(client anthropic.Client, modelID string, limiter *rate.Limiter, timeout time.Duration) ([]Worker, error) {
	kinds := append(append([]model.Kind{}, model.PhaseOneKinds...), model.PhaseTwoKinds...)
	workers := make([]Worker, 0, len(kinds))
	for _, kind := range kinds {
		w, err := NewClaudeWorker(kind, client, modelID, limiter, timeout)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (w *claudeWorker) Kind() model.Kind { return w.kind }

func (w *claudeWorker) Analyze(ctx context.Context, in Input) (json.RawMessage, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "analysis: rate wait for %s", w.kind)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", string(w.kind))
	resp, err := resilience.DoVal(callCtx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return w.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     w.model,
			MaxTokens: 1536,
			System:    workerPrompts[w.kind],
			Messages:  []anthropic.Message{{Role: "user", Content: w.buildPrompt(in)}},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: %s worker", w.kind)
	}
	resp.Usage.LogCost(w.model, "analysis_"+string(w.kind))

	raw := json.RawMessage(anthropic.CleanJSON(resp.Text()))
	if !json.Valid(raw) {
		return nil, eris.Errorf("analysis: %s worker returned invalid JSON", w.kind)
	}
	return raw, nil
}

func (w *claudeWorker) buildPrompt(in Input) string {
	var b strings.Builder
	switch w.kind {
	case model.KindMetrics, model.KindEntities, model.KindSummary:
		b.WriteString("Article text:\n\n")
		b.WriteString(in.Text)
	default:
		b.WriteString("Article summary:\n\n")
		b.WriteString(in.Summary)
		if len(in.Entities) > 0 {
			b.WriteString("\n\nIdentified entities:\n")
			for _, e := range in.Entities {
				b.WriteString("- " + e.Name)
				if e.Type != "" {
					b.WriteString(" (" + e.Type + ")")
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
