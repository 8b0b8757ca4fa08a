package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/newsaudit/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPGUpsertArticle_Inserted(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := st.UpsertArticle(context.Background(), &model.Article{
		Link: "https://example.com/a",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpsertArticle_DuplicateLink(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := st.UpsertArticle(context.Background(), &model.Article{
		Link: "https://example.com/a",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpdateExtraction_ChecksTransition(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status FROM articles").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("extraction_failed"))

	err := st.UpdateExtraction(context.Background(), "a1", ExtractionUpdate{
		Status: model.StatusPendingAnalysis,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal status transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpdateExtraction_Writes(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status FROM articles").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending_extraction"))
	mock.ExpectExec("UPDATE articles SET").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdateExtraction(context.Background(), "a1", ExtractionUpdate{
		Status: model.StatusPendingAnalysis,
		Text:   "body",
		Title:  "Title",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpdateAnalysis_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status FROM articles").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))

	err := st.UpdateAnalysis(context.Background(), "missing",
		&model.Document{}, model.StatusAnalysisComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpdateAudit_Writes(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE articles SET analysis_result").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	over := 55.0
	err := st.UpdateAudit(context.Background(), "a1",
		&model.Document{Summary: &model.SummarySection{Text: "s"}},
		&model.AuditRecord{ConfidenceScore: 55, Decision: model.DecisionCorrected, AuditedAt: time.Now().UTC()},
		&over,
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGGetArticle_ScansRow(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "link", "title", "source", "text", "status", "retry_count", "next_retry_at",
		"source_credibility", "analysis_result", "audit_record", "overall_confidence",
		"last_processed_at", "created_at", "updated_at",
	}).AddRow(
		"a1", "https://example.com/a", "Title", "wire", strPtr("body"), "analysis_complete", 0, (*time.Time)(nil),
		0.8, []byte(`{"summary":{"text":"s"}}`), []byte(`{"confidence_score":90,"decision":"corrected"}`), fPtr(64.8),
		&now, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM articles WHERE id").
		WithArgs("a1").
		WillReturnRows(rows)

	a, err := st.GetArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalysisComplete, a.Status)
	assert.Equal(t, "body", a.Text)
	require.NotNil(t, a.AnalysisResult)
	assert.Equal(t, "s", a.AnalysisResult.Summary.Text)
	require.NotNil(t, a.AuditRecord)
	assert.Equal(t, 90, a.AuditRecord.ConfidenceScore)
	assert.Equal(t, 64.8, *a.OverallConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGListArticles_BelowConfidenceQuery(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("audit_record->>'confidence_score'").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "link", "title", "source", "text", "status", "retry_count", "next_retry_at",
			"source_credibility", "analysis_result", "audit_record", "overall_confidence",
			"last_processed_at", "created_at", "updated_at",
		}))

	threshold := 85
	got, err := st.ListArticles(context.Background(), Filter{BelowConfidence: &threshold})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }

// anyArgs builds n pgxmock.AnyArg matchers; pgxmock v4 requires the
// expected argument count to match even when values are not asserted.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
