package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Kind identifies one analysis capability. The set is fixed per deployment;
// the orchestrator fans out over a static registry of these, never over
// string tags read from data.
type Kind string

const (
	KindMetrics      Kind = "metrics"
	KindEntities     Kind = "entities"
	KindSummary      Kind = "summary"
	KindSentiment    Kind = "sentiment"
	KindStakeholders Kind = "stakeholders"
	KindNeedsImpact  Kind = "needs_impact"
)

// PhaseOneKinds run concurrently against the full article text.
var PhaseOneKinds = []Kind{KindMetrics, KindEntities, KindSummary}

// PhaseTwoKinds run concurrently against phase-one context (summary and
// identified entities) only.
var PhaseTwoKinds = []Kind{KindSentiment, KindStakeholders, KindNeedsImpact}

// SectionStatusError marks a section whose worker ran and failed. The key is
// kept in the document so consumers can tell "worker found nothing" apart
// from "worker did not run".
const SectionStatusError = "error"

// Advisory flag values workers may attach to a section.
const (
	FlagSpeculativeInference = "speculative_inference"
	FlagInsufficientData     = "insufficient_data"
)

// Stakeholder impact directions.
const (
	ImpactPositive = "positive"
	ImpactNegative = "negative"
	ImpactNeutral  = "neutral"
)

// NeedsBasicStability is the needs-impact category denoting basic-stability
// concerns (food, shelter, safety).
const NeedsBasicStability = "basic_stability"

// Document is the consolidated analysis result for one article: one section
// per analysis kind, under fixed keys.
type Document struct {
	// PartialFailure is set when at least one worker failed and its section
	// is an error placeholder.
	PartialFailure bool `json:"partial_failure,omitempty"`

	Metrics      *MetricsSection      `json:"metrics,omitempty"`
	Entities     *EntitiesSection     `json:"entities,omitempty"`
	Summary      *SummarySection      `json:"summary,omitempty"`
	Sentiment    *SentimentSection    `json:"sentiment,omitempty"`
	Stakeholders *StakeholdersSection `json:"stakeholders,omitempty"`
	NeedsImpact  *NeedsImpactSection  `json:"needs_impact,omitempty"`
}

// MetricsSection holds quantitative-metrics output.
type MetricsSection struct {
	Status           string   `json:"status,omitempty"`
	EntropyRelevance *float64 `json:"entropy_relevance,omitempty"`
	KeyFigures       []string `json:"key_figures,omitempty"`
	Flags            []string `json:"flags,omitempty"`
}

// EntitiesSection holds entity-identification output.
type EntitiesSection struct {
	Status          string   `json:"status,omitempty"`
	Entities        []Entity `json:"entities,omitempty"`
	MarketRelevance *float64 `json:"market_relevance,omitempty"`
	Flags           []string `json:"flags,omitempty"`
}

// Entity is one identified entity.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// SummarySection holds the article summary.
type SummarySection struct {
	Status string   `json:"status,omitempty"`
	Text   string   `json:"text,omitempty"`
	Flags  []string `json:"flags,omitempty"`
}

// SentimentSection holds sentiment output. Score is in [-1, 1]; Intensity is
// the worker's declared strength ("weak", "moderate", "strong").
type SentimentSection struct {
	Status    string   `json:"status,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Intensity string   `json:"intensity,omitempty"`
	Flags     []string `json:"flags,omitempty"`
}

// StakeholdersSection holds stakeholder-impact output.
type StakeholdersSection struct {
	Status string             `json:"status,omitempty"`
	Groups []StakeholderGroup `json:"groups,omitempty"`
	Flags  []string           `json:"flags,omitempty"`
}

// StakeholderGroup is one affected group. At most one group is primary.
type StakeholderGroup struct {
	Name    string `json:"name"`
	Impact  string `json:"impact"`
	Primary bool   `json:"primary,omitempty"`
}

// NeedsImpactSection holds needs-impact output.
type NeedsImpactSection struct {
	Status     string   `json:"status,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// SetSection unmarshals raw worker output into the typed section for kind.
func (d *Document) SetSection(kind Kind, raw json.RawMessage) error {
	var err error
	switch kind {
	case KindMetrics:
		s := &MetricsSection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.Metrics = s
		}
	case KindEntities:
		s := &EntitiesSection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.Entities = s
		}
	case KindSummary:
		s := &SummarySection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.Summary = s
		}
	case KindSentiment:
		s := &SentimentSection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.Sentiment = s
		}
	case KindStakeholders:
		s := &StakeholdersSection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.Stakeholders = s
		}
	case KindNeedsImpact:
		s := &NeedsImpactSection{}
		if err = json.Unmarshal(raw, s); err == nil {
			d.NeedsImpact = s
		}
	default:
		return eris.Errorf("model: unknown analysis kind %q", kind)
	}
	return eris.Wrapf(err, "model: unmarshal %s section", kind)
}

// MarkFailed records an explicit error placeholder for kind, keeping the key
// present in the consolidated document.
func (d *Document) MarkFailed(kind Kind) {
	switch kind {
	case KindMetrics:
		d.Metrics = &MetricsSection{Status: SectionStatusError}
	case KindEntities:
		d.Entities = &EntitiesSection{Status: SectionStatusError}
	case KindSummary:
		d.Summary = &SummarySection{Status: SectionStatusError}
	case KindSentiment:
		d.Sentiment = &SentimentSection{Status: SectionStatusError}
	case KindStakeholders:
		d.Stakeholders = &StakeholdersSection{Status: SectionStatusError}
	case KindNeedsImpact:
		d.NeedsImpact = &NeedsImpactSection{Status: SectionStatusError}
	}
}

// HasSection reports whether the section for kind is present and did not
// fail. Absent and error-placeholder sections both count as missing.
func (d *Document) HasSection(kind Kind) bool {
	switch kind {
	case KindMetrics:
		return d.Metrics != nil && d.Metrics.Status != SectionStatusError
	case KindEntities:
		return d.Entities != nil && d.Entities.Status != SectionStatusError
	case KindSummary:
		return d.Summary != nil && d.Summary.Status != SectionStatusError
	case KindSentiment:
		return d.Sentiment != nil && d.Sentiment.Status != SectionStatusError
	case KindStakeholders:
		return d.Stakeholders != nil && d.Stakeholders.Status != SectionStatusError
	case KindNeedsImpact:
		return d.NeedsImpact != nil && d.NeedsImpact.Status != SectionStatusError
	}
	return false
}

// AdvisoryFlags collects worker-raised advisory flags from every present
// section, in fixed section order.
func (d *Document) AdvisoryFlags() []string {
	var flags []string
	if d.Metrics != nil {
		flags = append(flags, d.Metrics.Flags...)
	}
	if d.Entities != nil {
		flags = append(flags, d.Entities.Flags...)
	}
	if d.Summary != nil {
		flags = append(flags, d.Summary.Flags...)
	}
	if d.Sentiment != nil {
		flags = append(flags, d.Sentiment.Flags...)
	}
	if d.Stakeholders != nil {
		flags = append(flags, d.Stakeholders.Flags...)
	}
	if d.NeedsImpact != nil {
		flags = append(flags, d.NeedsImpact.Flags...)
	}
	return flags
}

// PrimaryStakeholder returns the primary group, or the first group when none
// is marked primary. Returns nil for an absent or empty section.
func (d *Document) PrimaryStakeholder() *StakeholderGroup {
	if d.Stakeholders == nil || len(d.Stakeholders.Groups) == 0 {
		return nil
	}
	for i := range d.Stakeholders.Groups {
		if d.Stakeholders.Groups[i].Primary {
			return &d.Stakeholders.Groups[i]
		}
	}
	return &d.Stakeholders.Groups[0]
}

// Clone returns a deep copy of the document via a marshal round trip.
func (d *Document) Clone() (*Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, eris.Wrap(err, "model: marshal document")
	}
	out := &Document{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrap(err, "model: unmarshal document")
	}
	return out, nil
}
