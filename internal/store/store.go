// Package store persists articles through the extraction and analysis
// lifecycle. Both backends validate status transitions centrally, so an
// illegal transition is rejected at the persistence boundary instead of
// being trusted to every call site.
package store

import (
	"context"
	"time"

	"github.com/meridian-research/newsaudit/internal/model"
)

// Filter selects articles for the batch entrypoints. Zero-value fields are
// ignored; set fields are ANDed together.
type Filter struct {
	// Status matches articles in exactly this state.
	Status model.Status

	// ExtractionDue selects pending_extraction articles plus
	// pending_extraction_retry articles whose next_retry_at has passed.
	ExtractionDue bool

	// BelowConfidence selects analysis_complete articles whose audit record
	// confidence score is strictly below this value.
	BelowConfidence *int

	// MissingAuditRecord selects articles with an analysis result but no
	// audit record.
	MissingAuditRecord bool

	// MissingOverallConfidence selects audited articles whose blended
	// overall_confidence was never computed.
	MissingOverallConfidence bool

	Limit int
}

// ExtractionUpdate is the single write the extraction controller performs
// per invocation. last_processed_at is always refreshed.
type ExtractionUpdate struct {
	Status      model.Status
	Text        string // written only when non-empty
	Title       string // written only when non-empty
	RetryCount  int
	NextRetryAt *time.Time
}

// Store is the persistence interface for the audit pipeline.
type Store interface {
	// UpsertArticle inserts the article unless its link already exists.
	// Returns true when a new row was created. Ingestion is idempotent per
	// link.
	UpsertArticle(ctx context.Context, a *model.Article) (bool, error)

	GetArticle(ctx context.Context, id string) (*model.Article, error)
	ListArticles(ctx context.Context, f Filter) ([]model.Article, error)

	// UpdateExtraction applies the extraction controller's owned fields.
	UpdateExtraction(ctx context.Context, id string, u ExtractionUpdate) error

	// UpdateAnalysis stores the consolidated result document and moves the
	// article to the given status.
	UpdateAnalysis(ctx context.Context, id string, doc *model.Document, status model.Status) error

	// UpdateAudit stores the audit record, the (possibly corrected)
	// document, and the blended overall confidence when non-nil.
	UpdateAudit(ctx context.Context, id string, doc *model.Document, rec *model.AuditRecord, overall *float64) error

	Migrate(ctx context.Context) error
	Close() error
}
