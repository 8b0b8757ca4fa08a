package scorer

import (
	"math"

	"github.com/meridian-research/newsaudit/internal/model"
)

// Conflict identifiers. These are persisted inside audit records and keyed
// on by the auditor; treat them as a wire contract.
const (
	ConflictMissingSummary        = "missing_summary"
	ConflictMissingSentiment      = "missing_sentiment_score"
	ConflictNoEntities            = "no_entities_identified"
	ConflictMissingStakeholders   = "missing_stakeholders"
	ConflictMissingNeedsImpact    = "missing_needs_impact"
	ConflictIntensityMismatch     = "sentiment_intensity_mismatch"
	ConflictImpactContradiction   = "sentiment_stakeholder_contradiction"
	ConflictBasicStabilityTension = "sentiment_basic_stability_tension"
	ConflictLowRelevanceTension   = "sentiment_low_relevance_tension"

	// AdvisoryFlagPrefix prefixes one conflict per worker-raised flag,
	// e.g. "advisory_flag:speculative_inference".
	AdvisoryFlagPrefix = "advisory_flag:"
)

// Scorer computes a deterministic confidence score for a document.
type Scorer struct {
	cfg Config
}

// New creates a Scorer with the given penalty config.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score inspects the document and returns a 0-100 confidence score along
// with the named conflicts found. It is a pure function: no I/O, no
// randomness, identical output for identical input.
func (s *Scorer) Score(doc *model.Document) (int, []string) {
	score := 100
	var conflicts []string
	penalize := func(conflict string, penalty int) {
		conflicts = append(conflicts, conflict)
		score -= penalty
	}

	// Completeness.
	if !doc.HasSection(model.KindSummary) || doc.Summary.Text == "" {
		penalize(ConflictMissingSummary, s.cfg.MissingSummary)
	}
	hasSentiment := doc.HasSection(model.KindSentiment) && doc.Sentiment.Score != nil
	if !hasSentiment {
		penalize(ConflictMissingSentiment, s.cfg.MissingSentiment)
	}
	if !doc.HasSection(model.KindEntities) || len(doc.Entities.Entities) == 0 {
		penalize(ConflictNoEntities, s.cfg.NoEntities)
	}
	if !doc.HasSection(model.KindStakeholders) {
		penalize(ConflictMissingStakeholders, s.cfg.MissingStakeholders)
	}
	if !doc.HasSection(model.KindNeedsImpact) {
		penalize(ConflictMissingNeedsImpact, s.cfg.MissingNeedsImpact)
	}

	// Consistency checks need a sentiment score to compare against.
	if hasSentiment {
		sv := *doc.Sentiment.Score
		magnitude := math.Abs(sv)

		if magnitude > 0.6 && doc.Sentiment.Intensity == "weak" {
			penalize(ConflictIntensityMismatch, s.cfg.IntensityMismatch)
		}

		if primary := doc.PrimaryStakeholder(); primary != nil {
			contradiction := (sv > 0 && primary.Impact == model.ImpactNegative) ||
				(sv < 0 && primary.Impact == model.ImpactPositive)
			if contradiction {
				penalize(ConflictImpactContradiction, s.cfg.ImpactContradiction)
			}
		}

		if magnitude > 0.5 && doc.HasSection(model.KindNeedsImpact) {
			for _, cat := range doc.NeedsImpact.Categories {
				if cat == model.NeedsBasicStability {
					penalize(ConflictBasicStabilityTension, s.cfg.BasicStabilityTension)
					break
				}
			}
		}

		if magnitude > 0.7 && doc.HasSection(model.KindEntities) &&
			doc.Entities.MarketRelevance != nil && *doc.Entities.MarketRelevance < 0.4 {
			penalize(ConflictLowRelevanceTension, s.cfg.LowRelevanceTension)
		}
	}

	// Worker-raised advisory flags, one penalty per flag.
	for _, flag := range doc.AdvisoryFlags() {
		penalize(AdvisoryFlagPrefix+flag, s.cfg.AdvisoryFlag)
	}

	if score < 0 {
		score = 0
	}
	return score, conflicts
}
