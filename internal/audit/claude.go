package audit

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

const correctorSystemPrompt = `You are a quality auditor for news analysis documents. You receive an analysis document in JSON and a list of detected conflicts.

Decide whether the conflicts can be resolved by small, targeted corrections. If yes, respond with decision "corrected" and list each edit explicitly. If the document is too damaged or the conflicts cannot be honestly resolved, respond with decision "rejected".

Rules:
- Every edit names exactly one section and one field. Never rewrite whole sections.
- Only edit fields implicated by a listed conflict.
- Never edit a "flags" field. To remove an advisory flag, list it under "remove_flags" and include an edit to the same section that resolves the flagged condition.
- Always provide a justification explaining your decision.

Respond with a single JSON object:
{"decision": "corrected" | "rejected", "justification": "...", "edits": [{"section": "...", "field": "...", "value": <json>}], "remove_flags": ["..."]}`

// ClaudeCorrector proposes corrections via the Anthropic API. It shares
// the analysis workers' rate limiter so correction calls count against
// the same API budget.
type ClaudeCorrector struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClaudeCorrector creates a corrector using the given client and model.
// limiter may be nil when no pacing is wanted.
func NewClaudeCorrector(client anthropic.Client, model string, limiter *rate.Limiter, timeout time.Duration) *ClaudeCorrector {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ClaudeCorrector{client: client, model: model, limiter: limiter, timeout: timeout}
}

func (c *ClaudeCorrector) ProposeCorrection(ctx context.Context, conflicts []string, doc *model.Document) (*Proposal, error) {
	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "audit: marshal document for correction")
	}

	var prompt strings.Builder
	prompt.WriteString("Detected conflicts:\n")
	for _, conflict := range conflicts {
		prompt.WriteString("- " + conflict + "\n")
	}
	prompt.WriteString("\nAnalysis document:\n")
	prompt.Write(docJSON)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "audit: wait for rate limiter")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "audit_correction")
	resp, err := resilience.DoVal(callCtx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: 2048,
			System:    correctorSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt.String()}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "audit: correction request")
	}
	resp.Usage.LogCost(c.model, "audit_correction")

	proposal := &Proposal{}
	if err := json.Unmarshal([]byte(anthropic.CleanJSON(resp.Text())), proposal); err != nil {
		return nil, eris.Wrap(err, "audit: parse correction proposal")
	}
	return proposal, nil
}
