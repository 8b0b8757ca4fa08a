package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-research/newsaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY,
	link               TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL DEFAULT '',
	text               TEXT,
	status             TEXT NOT NULL DEFAULT 'pending_extraction',
	retry_count        INTEGER NOT NULL DEFAULT 0,
	next_retry_at      DATETIME,
	source_credibility REAL NOT NULL DEFAULT 0.5,
	analysis_result    TEXT,
	audit_record       TEXT,
	overall_confidence REAL,
	last_processed_at  DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_articles_next_retry_at ON articles(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertArticle(ctx context.Context, a *model.Article) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = model.StatusPendingExtraction
	}
	if !a.Status.Valid() {
		return false, eris.Errorf("sqlite: invalid status %q", a.Status)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, link, title, source, status, retry_count, source_credibility, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT(link) DO NOTHING`,
		a.ID, a.Link, a.Title, a.Source, string(a.Status), a.SourceCredibility, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert article %s", a.Link)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		a.CreatedAt = now
		a.UpdatedAt = now
	}
	return n > 0, nil
}

const sqliteArticleColumns = `id, link, title, source, text, status, retry_count, next_retry_at,
	source_credibility, analysis_result, audit_record, overall_confidence,
	last_processed_at, created_at, updated_at`

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteArticleColumns+` FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

func (s *SQLiteStore) ListArticles(ctx context.Context, f Filter) ([]model.Article, error) {
	query := `SELECT ` + sqliteArticleColumns + ` FROM articles WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ExtractionDue {
		query += ` AND (status = ? OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?))`
		args = append(args,
			string(model.StatusPendingExtraction),
			string(model.StatusPendingExtractionRetry),
			time.Now().UTC(),
		)
	}
	if f.BelowConfidence != nil {
		query += ` AND status = ? AND audit_record IS NOT NULL
			AND json_extract(audit_record, '$.confidence_score') < ?`
		args = append(args, string(model.StatusAnalysisComplete), *f.BelowConfidence)
	}
	if f.MissingAuditRecord {
		query += ` AND analysis_result IS NOT NULL AND audit_record IS NULL`
	}
	if f.MissingOverallConfidence {
		query += ` AND audit_record IS NOT NULL AND overall_confidence IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list articles")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, eris.Wrap(rows.Err(), "sqlite: list articles iterate")
}

func (s *SQLiteStore) UpdateExtraction(ctx context.Context, id string, u ExtractionUpdate) error {
	if err := s.checkTransition(ctx, id, u.Status); err != nil {
		return err
	}
	now := time.Now().UTC()

	set := `status = ?, retry_count = ?, next_retry_at = ?, last_processed_at = ?, updated_at = ?`
	args := []any{string(u.Status), u.RetryCount, u.NextRetryAt, now, now}
	if u.Text != "" {
		set += `, text = ?`
		args = append(args, u.Text)
	}
	if u.Title != "" {
		set += `, title = ?`
		args = append(args, u.Title)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE articles SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update extraction %s", id)
	}
	return checkRowsAffected(res, "article", id)
}

func (s *SQLiteStore) UpdateAnalysis(ctx context.Context, id string, doc *model.Document, status model.Status) error {
	if err := s.checkTransition(ctx, id, status); err != nil {
		return err
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis result")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET analysis_result = ?, status = ?, last_processed_at = ?, updated_at = ? WHERE id = ?`,
		string(docJSON), string(status), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis %s", id)
	}
	return checkRowsAffected(res, "article", id)
}

func (s *SQLiteStore) UpdateAudit(ctx context.Context, id string, doc *model.Document, rec *model.AuditRecord, overall *float64) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal corrected document")
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit record")
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET analysis_result = ?, audit_record = ?, overall_confidence = ?,
		 last_processed_at = ?, updated_at = ? WHERE id = ?`,
		string(docJSON), string(recJSON), overall, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update audit %s", id)
	}
	return checkRowsAffected(res, "article", id)
}

// checkTransition loads the article's current status and rejects illegal
// transitions.
func (s *SQLiteStore) checkTransition(ctx context.Context, id string, to model.Status) error {
	var cur string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM articles WHERE id = ?`, id).Scan(&cur)
	if err == sql.ErrNoRows {
		return eris.Errorf("article not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load status %s", id)
	}
	if !model.CanTransition(model.Status(cur), to) {
		return eris.Errorf("illegal status transition %s -> %s for article %s", cur, to, id)
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var text, analysisJSON, auditJSON sql.NullString
	var nextRetryAt, lastProcessedAt sql.NullTime
	var overall sql.NullFloat64
	var status string

	err := row.Scan(&a.ID, &a.Link, &a.Title, &a.Source, &text, &status,
		&a.RetryCount, &nextRetryAt, &a.SourceCredibility,
		&analysisJSON, &auditJSON, &overall, &lastProcessedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("article not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan article")
	}

	a.Status = model.Status(status)
	if text.Valid {
		a.Text = text.String
	}
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		a.NextRetryAt = &t
	}
	if lastProcessedAt.Valid {
		t := lastProcessedAt.Time
		a.LastProcessedAt = &t
	}
	if overall.Valid {
		v := overall.Float64
		a.OverallConfidence = &v
	}
	if analysisJSON.Valid {
		a.AnalysisResult = &model.Document{}
		if err := json.Unmarshal([]byte(analysisJSON.String), a.AnalysisResult); err != nil {
			return nil, eris.Wrap(err, "unmarshal analysis result")
		}
	}
	if auditJSON.Valid {
		a.AuditRecord = &model.AuditRecord{}
		if err := json.Unmarshal([]byte(auditJSON.String), a.AuditRecord); err != nil {
			return nil, eris.Wrap(err, "unmarshal audit record")
		}
	}
	return &a, nil
}
