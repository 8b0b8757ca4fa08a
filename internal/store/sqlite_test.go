package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/newsaudit/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func insertArticle(t *testing.T, st *SQLiteStore, a *model.Article) *model.Article {
	t.Helper()
	inserted, err := st.UpsertArticle(context.Background(), a)
	require.NoError(t, err)
	require.True(t, inserted)
	return a
}

func intPtr(v int) *int              { return &v }
func fPtr(v float64) *float64        { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestUpsertArticle_DedupOnLink(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := &model.Article{Link: "https://example.com/a", Title: "First"}
	inserted, err := st.UpsertArticle(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, first.ID)

	dup := &model.Article{Link: "https://example.com/a", Title: "Duplicate"}
	inserted, err = st.UpsertArticle(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := st.GetArticle(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, model.StatusPendingExtraction, got.Status)
}

func TestUpsertArticle_RejectsInvalidStatus(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertArticle(context.Background(), &model.Article{
		Link:   "https://example.com/a",
		Status: model.Status("bogus"),
	})
	assert.Error(t, err)
}

func TestUpdateExtraction_SuccessPath(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})

	err := st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis,
		Text:   "extracted body",
		Title:  "Extracted Title",
	})
	require.NoError(t, err)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingAnalysis, got.Status)
	assert.Equal(t, "extracted body", got.Text)
	assert.Equal(t, "Extracted Title", got.Title)
	assert.Equal(t, 0, got.RetryCount)
	require.NotNil(t, got.LastProcessedAt)
}

func TestUpdateExtraction_RetrySchedule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})

	next := time.Now().UTC().Add(2 * time.Minute).Truncate(time.Second)
	err := st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status:      model.StatusPendingExtractionRetry,
		RetryCount:  1,
		NextRetryAt: &next,
	})
	require.NoError(t, err)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingExtractionRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, next, *got.NextRetryAt, time.Second)
}

func TestUpdateExtraction_IllegalTransitionRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})

	require.NoError(t, st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusExtractionBlocked,
	}))

	// Terminal state admits no further movement.
	err := st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal status transition")

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtractionBlocked, got.Status)
}

func TestUpdateExtraction_UnknownArticle(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateExtraction(context.Background(), "missing", ExtractionUpdate{
		Status: model.StatusPendingAnalysis,
	})
	assert.Error(t, err)
}

func TestUpdateAnalysis_RoundTripsDocument(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})
	require.NoError(t, st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis, Text: "body",
	}))

	doc := &model.Document{
		Summary:   &model.SummarySection{Text: "A summary."},
		Sentiment: &model.SentimentSection{Score: fPtr(-0.3), Intensity: "moderate"},
	}
	require.NoError(t, st.UpdateAnalysis(ctx, a.ID, doc, model.StatusAnalysisComplete))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalysisComplete, got.Status)
	require.NotNil(t, got.AnalysisResult)
	assert.Equal(t, "A summary.", got.AnalysisResult.Summary.Text)
	assert.Equal(t, -0.3, *got.AnalysisResult.Sentiment.Score)
}

func TestUpdateAnalysis_ReanalysisReentry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})
	require.NoError(t, st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis, Text: "body",
	}))
	doc := &model.Document{Summary: &model.SummarySection{Text: "s"}}
	require.NoError(t, st.UpdateAnalysis(ctx, a.ID, doc, model.StatusAnalysisComplete))

	// The single legal backward edge.
	require.NoError(t, st.UpdateAnalysis(ctx, a.ID, doc, model.StatusPendingAnalysis))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingAnalysis, got.Status)
}

func TestUpdateAudit_StoresRecordAndConfidence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := insertArticle(t, st, &model.Article{Link: "https://example.com/a"})
	require.NoError(t, st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis, Text: "body",
	}))
	doc := &model.Document{Summary: &model.SummarySection{Text: "s"}}
	require.NoError(t, st.UpdateAnalysis(ctx, a.ID, doc, model.StatusAnalysisComplete))

	rec := &model.AuditRecord{
		ConfidenceScore: 70,
		Conflicts:       []string{"missing_sentiment_score"},
		Decision:        model.DecisionRejected,
		Justification:   "sentiment unavailable",
		AuditedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.UpdateAudit(ctx, a.ID, doc, rec, fPtr(42.5)))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AuditRecord)
	assert.Equal(t, 70, got.AuditRecord.ConfidenceScore)
	assert.Equal(t, model.DecisionRejected, got.AuditRecord.Decision)
	require.NotNil(t, got.OverallConfidence)
	assert.Equal(t, 42.5, *got.OverallConfidence)
}

func TestListArticles_ExtractionDue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pending := insertArticle(t, st, &model.Article{Link: "https://example.com/pending"})

	dueRetry := insertArticle(t, st, &model.Article{Link: "https://example.com/due"})
	require.NoError(t, st.UpdateExtraction(ctx, dueRetry.ID, ExtractionUpdate{
		Status:      model.StatusPendingExtractionRetry,
		RetryCount:  1,
		NextRetryAt: timePtr(time.Now().UTC().Add(-time.Minute)),
	}))

	futureRetry := insertArticle(t, st, &model.Article{Link: "https://example.com/future"})
	require.NoError(t, st.UpdateExtraction(ctx, futureRetry.ID, ExtractionUpdate{
		Status:      model.StatusPendingExtractionRetry,
		RetryCount:  1,
		NextRetryAt: timePtr(time.Now().UTC().Add(time.Hour)),
	}))

	done := insertArticle(t, st, &model.Article{Link: "https://example.com/done"})
	require.NoError(t, st.UpdateExtraction(ctx, done.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis, Text: "body",
	}))

	got, err := st.ListArticles(ctx, Filter{ExtractionDue: true})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{pending.ID, dueRetry.ID}, ids)
}

func TestListArticles_BelowConfidence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	complete := func(link string, score int) *model.Article {
		a := insertArticle(t, st, &model.Article{Link: link})
		require.NoError(t, st.UpdateExtraction(ctx, a.ID, ExtractionUpdate{
			Status: model.StatusPendingAnalysis, Text: "body",
		}))
		doc := &model.Document{Summary: &model.SummarySection{Text: "s"}}
		require.NoError(t, st.UpdateAnalysis(ctx, a.ID, doc, model.StatusAnalysisComplete))
		rec := &model.AuditRecord{ConfidenceScore: score, Decision: model.DecisionCorrected, AuditedAt: time.Now().UTC()}
		require.NoError(t, st.UpdateAudit(ctx, a.ID, doc, rec, fPtr(float64(score))))
		return a
	}

	low := complete("https://example.com/low", 60)
	complete("https://example.com/high", 95)
	complete("https://example.com/edge", 85)

	got, err := st.ListArticles(ctx, Filter{BelowConfidence: intPtr(85)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, low.ID, got[0].ID)
}

func TestListArticles_MissingAuditRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	analyzed := insertArticle(t, st, &model.Article{Link: "https://example.com/analyzed"})
	require.NoError(t, st.UpdateExtraction(ctx, analyzed.ID, ExtractionUpdate{
		Status: model.StatusPendingAnalysis, Text: "body",
	}))
	doc := &model.Document{Summary: &model.SummarySection{Text: "s"}}
	require.NoError(t, st.UpdateAnalysis(ctx, analyzed.ID, doc, model.StatusAnalysisComplete))

	insertArticle(t, st, &model.Article{Link: "https://example.com/raw"})

	got, err := st.ListArticles(ctx, Filter{MissingAuditRecord: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, analyzed.ID, got[0].ID)
}

func TestListArticles_StatusFilterAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, link := range []string{"https://e.com/1", "https://e.com/2", "https://e.com/3"} {
		insertArticle(t, st, &model.Article{Link: link})
	}

	got, err := st.ListArticles(ctx, Filter{Status: model.StatusPendingExtraction, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.ListArticles(ctx, Filter{Status: model.StatusAnalysisComplete})
	require.NoError(t, err)
	assert.Empty(t, got)
}
