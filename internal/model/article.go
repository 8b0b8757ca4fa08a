// Package model defines the article lifecycle domain types shared by the
// extraction, analysis, and audit components.
package model

import (
	"time"
)

// Status is the lifecycle state of an Article. The string values are
// persisted and consumed by maintenance tooling; renaming one is a schema
// migration.
type Status string

const (
	StatusPendingExtraction      Status = "pending_extraction"
	StatusPendingExtractionRetry Status = "pending_extraction_retry"
	StatusExtractionBlocked      Status = "extraction_blocked"
	StatusExtractionFailed       Status = "extraction_failed"
	StatusProcessedDocument      Status = "processed_document"
	StatusPendingAnalysis        Status = "pending_analysis"
	StatusAnalysisComplete       Status = "analysis_complete"
)

// transitions is the central table of legal status transitions. The single
// backward edge (analysis_complete -> pending_analysis) exists for
// reanalysis re-entry only.
var transitions = map[Status][]Status{
	StatusPendingExtraction: {
		StatusPendingExtractionRetry,
		StatusExtractionBlocked,
		StatusExtractionFailed,
		StatusProcessedDocument,
		StatusPendingAnalysis,
	},
	StatusPendingExtractionRetry: {
		StatusPendingExtractionRetry,
		StatusExtractionBlocked,
		StatusExtractionFailed,
		StatusProcessedDocument,
		StatusPendingAnalysis,
	},
	StatusPendingAnalysis: {
		StatusAnalysisComplete,
	},
	StatusAnalysisComplete: {
		StatusPendingAnalysis,
	},
	// Terminal states have no outgoing edges.
	StatusExtractionBlocked: {},
	StatusExtractionFailed:  {},
	StatusProcessedDocument: {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s admits no further automatic transition.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether from -> to is a legal status transition.
// A no-op transition (from == to) is always allowed so idempotent
// re-invocations can rewrite a row without changing state.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Article is one collected content record tracked through extraction and
// analysis. The link is the identity key for dedup; ingestion is idempotent
// per link.
type Article struct {
	ID                string       `json:"id"`
	Link              string       `json:"link"`
	Title             string       `json:"title,omitempty"`
	Source            string       `json:"source,omitempty"`
	Text              string       `json:"text,omitempty"`
	Status            Status       `json:"status"`
	RetryCount        int          `json:"retry_count"`
	NextRetryAt       *time.Time   `json:"next_retry_at,omitempty"`
	SourceCredibility float64      `json:"source_credibility"`
	AnalysisResult    *Document    `json:"analysis_result,omitempty"`
	AuditRecord       *AuditRecord `json:"audit_record,omitempty"`
	OverallConfidence *float64     `json:"overall_confidence,omitempty"`
	LastProcessedAt   *time.Time   `json:"last_processed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
