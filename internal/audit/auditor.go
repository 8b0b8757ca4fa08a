// Package audit reviews scored analysis documents: surgical, justified
// corrections for specific conflicts, or rejection with the original
// document preserved exactly.
package audit

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/newsaudit/internal/model"
	"github.com/meridian-research/newsaudit/internal/scorer"
)

// Edit is one named, surgical change to a single document field. Edits may
// not target a section's flags; flags are dropped via Proposal.RemoveFlags
// and only alongside a substantive edit to the same section.
type Edit struct {
	Section string          `json:"section"`
	Field   string          `json:"field"`
	Value   json.RawMessage `json:"value"`
}

// Proposal is a corrector's suggested outcome for a review.
type Proposal struct {
	Decision      string   `json:"decision"`
	Justification string   `json:"justification"`
	Edits         []Edit   `json:"edits,omitempty"`
	RemoveFlags   []string `json:"remove_flags,omitempty"`
}

// Corrector proposes corrections for a conflicted document. The correction
// reasoning is an opaque capability; the Auditor validates the proposal
// against the review contract and never trusts it blindly.
type Corrector interface {
	ProposeCorrection(ctx context.Context, conflicts []string, doc *model.Document) (*Proposal, error)
}

// Auditor validates and applies correction proposals.
type Auditor struct {
	corrector Corrector
}

// New creates an Auditor backed by the given corrector.
func New(c Corrector) *Auditor {
	return &Auditor{corrector: c}
}

// Review decides the audit outcome for a scored document. score and
// conflicts come from the scorer's pass over doc. On any contract
// violation, corrector failure, or explicit rejection the returned document
// is the input document, unchanged; otherwise it is a corrected copy and
// the input is never mutated.
func (a *Auditor) Review(ctx context.Context, score int, conflicts []string, doc *model.Document) (*model.Document, *model.AuditRecord, error) {
	record := &model.AuditRecord{
		ConfidenceScore: score,
		Conflicts:       conflicts,
		AuditedAt:       time.Now().UTC(),
	}

	if len(conflicts) == 0 {
		record.Decision = model.DecisionCorrected
		record.Justification = "no conflicts detected"
		return doc, record, nil
	}

	proposal, err := a.corrector.ProposeCorrection(ctx, conflicts, doc)
	if err != nil {
		// A failed correction capability is a valid rejection, not a
		// pipeline error.
		zap.L().Warn("audit: corrector failed, rejecting", zap.Error(err))
		record.Decision = model.DecisionRejected
		record.Justification = "correction capability unavailable"
		return doc, record, nil
	}

	if proposal.Decision != model.DecisionCorrected {
		record.Decision = model.DecisionRejected
		record.Justification = proposal.Justification
		return doc, record, nil
	}

	corrected, reason := a.apply(proposal, conflicts, doc)
	if corrected == nil {
		zap.L().Warn("audit: proposal violates review contract, rejecting",
			zap.String("reason", reason))
		record.Decision = model.DecisionRejected
		record.Justification = "proposal violated review contract: " + reason
		return doc, record, nil
	}

	record.Decision = model.DecisionCorrected
	record.Justification = proposal.Justification
	return corrected, record, nil
}

// apply validates the proposal against the contract and applies it to a
// copy of doc. Returns (nil, reason) on any violation.
func (a *Auditor) apply(p *Proposal, conflicts []string, doc *model.Document) (*model.Document, string) {
	if strings.TrimSpace(p.Justification) == "" {
		return nil, "correction without justification"
	}
	if len(p.Edits) == 0 {
		return nil, "correction without edits"
	}

	allowed := allowedTargets(conflicts, doc)

	// Flags the proposal removes need both a matching conflict and a
	// substantive edit to the flag's section.
	editedSections := make(map[string]bool)
	for _, e := range p.Edits {
		if e.Field == "flags" {
			return nil, "edit targets a flags field"
		}
		target := e.Section + "." + e.Field
		if !allowed[target] {
			return nil, "edit targets field unrelated to any conflict: " + target
		}
		editedSections[e.Section] = true
	}

	removed := make(map[string]bool, len(p.RemoveFlags))
	for _, flag := range p.RemoveFlags {
		if !slices.Contains(conflicts, scorer.AdvisoryFlagPrefix+flag) {
			return nil, "flag removal without matching conflict: " + flag
		}
		section := sectionCarryingFlag(doc, flag)
		if section == "" {
			return nil, "flag not present in document: " + flag
		}
		if !editedSections[section] {
			return nil, "flag removal without a named field edit: " + flag
		}
		removed[flag] = true
	}

	// A corrected outcome must resolve every flagged condition. A flag the
	// proposal leaves standing makes the whole result a rejection, even when
	// its other edits are valid.
	for _, c := range conflicts {
		if flag, ok := strings.CutPrefix(c, scorer.AdvisoryFlagPrefix); ok && !removed[flag] {
			return nil, "advisory flag left unaddressed: " + flag
		}
	}

	corrected, err := doc.Clone()
	if err != nil {
		return nil, "document copy failed"
	}
	for _, e := range p.Edits {
		if err := applyEdit(corrected, e); err != nil {
			return nil, err.Error()
		}
	}
	for section := range editedSections {
		clearErrorStatus(corrected, section)
	}
	for _, flag := range p.RemoveFlags {
		removeFlag(corrected, flag)
	}
	return corrected, ""
}

// allowedTargets maps the conflict list to the set of "section.field"
// targets a correction may touch. Fields unrelated to a listed conflict are
// off limits.
func allowedTargets(conflicts []string, doc *model.Document) map[string]bool {
	allowed := make(map[string]bool)
	add := func(targets ...string) {
		for _, t := range targets {
			allowed[t] = true
		}
	}

	for _, c := range conflicts {
		switch c {
		case scorer.ConflictMissingSummary:
			add("summary.text")
		case scorer.ConflictMissingSentiment:
			add("sentiment.score", "sentiment.intensity")
		case scorer.ConflictNoEntities:
			add("entities.entities", "entities.market_relevance")
		case scorer.ConflictMissingStakeholders:
			add("stakeholders.groups")
		case scorer.ConflictMissingNeedsImpact:
			add("needs_impact.categories", "needs_impact.severity")
		case scorer.ConflictIntensityMismatch:
			add("sentiment.score", "sentiment.intensity")
		case scorer.ConflictImpactContradiction:
			add("sentiment.score", "stakeholders.groups")
		case scorer.ConflictBasicStabilityTension:
			add("sentiment.score", "needs_impact.categories")
		case scorer.ConflictLowRelevanceTension:
			add("sentiment.score", "entities.market_relevance")
		default:
			if flag, ok := strings.CutPrefix(c, scorer.AdvisoryFlagPrefix); ok {
				switch sectionCarryingFlag(doc, flag) {
				case "metrics":
					add("metrics.entropy_relevance", "metrics.key_figures")
				case "entities":
					add("entities.entities", "entities.market_relevance")
				case "summary":
					add("summary.text")
				case "sentiment":
					add("sentiment.score", "sentiment.intensity")
				case "stakeholders":
					add("stakeholders.groups")
				case "needs_impact":
					add("needs_impact.categories", "needs_impact.severity")
				}
			}
		}
	}
	return allowed
}

// sectionCarryingFlag returns the key of the first section whose flags
// contain flag, or "".
func sectionCarryingFlag(doc *model.Document, flag string) string {
	carries := func(flags []string) bool { return slices.Contains(flags, flag) }
	switch {
	case doc.Metrics != nil && carries(doc.Metrics.Flags):
		return "metrics"
	case doc.Entities != nil && carries(doc.Entities.Flags):
		return "entities"
	case doc.Summary != nil && carries(doc.Summary.Flags):
		return "summary"
	case doc.Sentiment != nil && carries(doc.Sentiment.Flags):
		return "sentiment"
	case doc.Stakeholders != nil && carries(doc.Stakeholders.Flags):
		return "stakeholders"
	case doc.NeedsImpact != nil && carries(doc.NeedsImpact.Flags):
		return "needs_impact"
	}
	return ""
}

// clearErrorStatus lifts the error placeholder from a section a correction
// just filled in, so downstream scoring sees the repaired content.
func clearErrorStatus(doc *model.Document, section string) {
	switch section {
	case "metrics":
		if doc.Metrics != nil && doc.Metrics.Status == model.SectionStatusError {
			doc.Metrics.Status = ""
		}
	case "entities":
		if doc.Entities != nil && doc.Entities.Status == model.SectionStatusError {
			doc.Entities.Status = ""
		}
	case "summary":
		if doc.Summary != nil && doc.Summary.Status == model.SectionStatusError {
			doc.Summary.Status = ""
		}
	case "sentiment":
		if doc.Sentiment != nil && doc.Sentiment.Status == model.SectionStatusError {
			doc.Sentiment.Status = ""
		}
	case "stakeholders":
		if doc.Stakeholders != nil && doc.Stakeholders.Status == model.SectionStatusError {
			doc.Stakeholders.Status = ""
		}
	case "needs_impact":
		if doc.NeedsImpact != nil && doc.NeedsImpact.Status == model.SectionStatusError {
			doc.NeedsImpact.Status = ""
		}
	}
}

func removeFlag(doc *model.Document, flag string) {
	drop := func(flags []string) []string {
		out := flags[:0]
		for _, f := range flags {
			if f != flag {
				out = append(out, f)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	if doc.Metrics != nil {
		doc.Metrics.Flags = drop(doc.Metrics.Flags)
	}
	if doc.Entities != nil {
		doc.Entities.Flags = drop(doc.Entities.Flags)
	}
	if doc.Summary != nil {
		doc.Summary.Flags = drop(doc.Summary.Flags)
	}
	if doc.Sentiment != nil {
		doc.Sentiment.Flags = drop(doc.Sentiment.Flags)
	}
	if doc.Stakeholders != nil {
		doc.Stakeholders.Flags = drop(doc.Stakeholders.Flags)
	}
	if doc.NeedsImpact != nil {
		doc.NeedsImpact.Flags = drop(doc.NeedsImpact.Flags)
	}
}

// applyEdit writes one field value into the document, creating the target
// section if the conflict was its absence.
func applyEdit(doc *model.Document, e Edit) error {
	set := func(dst any) error {
		if err := json.Unmarshal(e.Value, dst); err != nil {
			return eris.Wrapf(err, "audit: edit value for %s.%s", e.Section, e.Field)
		}
		return nil
	}

	switch e.Section {
	case "metrics":
		if doc.Metrics == nil {
			doc.Metrics = &model.MetricsSection{}
		}
		switch e.Field {
		case "entropy_relevance":
			return set(&doc.Metrics.EntropyRelevance)
		case "key_figures":
			return set(&doc.Metrics.KeyFigures)
		}
	case "entities":
		if doc.Entities == nil {
			doc.Entities = &model.EntitiesSection{}
		}
		switch e.Field {
		case "entities":
			return set(&doc.Entities.Entities)
		case "market_relevance":
			return set(&doc.Entities.MarketRelevance)
		}
	case "summary":
		if doc.Summary == nil {
			doc.Summary = &model.SummarySection{}
		}
		if e.Field == "text" {
			return set(&doc.Summary.Text)
		}
	case "sentiment":
		if doc.Sentiment == nil {
			doc.Sentiment = &model.SentimentSection{}
		}
		switch e.Field {
		case "score":
			return set(&doc.Sentiment.Score)
		case "intensity":
			return set(&doc.Sentiment.Intensity)
		}
	case "stakeholders":
		if doc.Stakeholders == nil {
			doc.Stakeholders = &model.StakeholdersSection{}
		}
		if e.Field == "groups" {
			return set(&doc.Stakeholders.Groups)
		}
	case "needs_impact":
		if doc.NeedsImpact == nil {
			doc.NeedsImpact = &model.NeedsImpactSection{}
		}
		switch e.Field {
		case "categories":
			return set(&doc.NeedsImpact.Categories)
		case "severity":
			return set(&doc.NeedsImpact.Severity)
		}
	}
	return eris.Errorf("audit: unsupported edit target %s.%s", e.Section, e.Field)
}
