package model

import "time"

// Audit decisions.
const (
	DecisionCorrected = "corrected"
	DecisionRejected  = "rejected"
)

// AuditRecord is the persisted outcome of a quality review: the scorer's
// confidence score, the conflicts it found, and the auditor's decision.
type AuditRecord struct {
	ConfidenceScore int       `json:"confidence_score"`
	Conflicts       []string  `json:"conflicts"`
	Decision        string    `json:"decision"`
	Justification   string    `json:"justification,omitempty"`
	AuditedAt       time.Time `json:"audited_at"`
}
