package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-research/newsaudit/internal/db"
	"github.com/meridian-research/newsaudit/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY,
	link               TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL DEFAULT '',
	text               TEXT,
	status             TEXT NOT NULL DEFAULT 'pending_extraction',
	retry_count        INTEGER NOT NULL DEFAULT 0,
	next_retry_at      TIMESTAMPTZ,
	source_credibility DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	analysis_result    JSONB,
	audit_record       JSONB,
	overall_confidence DOUBLE PRECISION,
	last_processed_at  TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_articles_next_retry_at ON articles(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertArticle(ctx context.Context, a *model.Article) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = model.StatusPendingExtraction
	}
	if !a.Status.Valid() {
		return false, eris.Errorf("postgres: invalid status %q", a.Status)
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO articles (id, link, title, source, status, retry_count, source_credibility, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
		 ON CONFLICT (link) DO NOTHING`,
		a.ID, a.Link, a.Title, a.Source, string(a.Status), a.SourceCredibility, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert article %s", a.Link)
	}
	if tag.RowsAffected() > 0 {
		a.CreatedAt = now
		a.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

const pgArticleColumns = `id, link, title, source, text, status, retry_count, next_retry_at,
	source_credibility, analysis_result, audit_record, overall_confidence,
	last_processed_at, created_at, updated_at`

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgArticleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanPGArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: article not found: %s", id)
	}
	return a, err
}

func (s *PostgresStore) ListArticles(ctx context.Context, f Filter) ([]model.Article, error) {
	query := `SELECT ` + pgArticleColumns + ` FROM articles WHERE true`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Status != "" {
		query += ` AND status = ` + arg(string(f.Status))
	}
	if f.ExtractionDue {
		query += ` AND (status = ` + arg(string(model.StatusPendingExtraction)) +
			` OR (status = ` + arg(string(model.StatusPendingExtractionRetry)) +
			` AND next_retry_at IS NOT NULL AND next_retry_at <= ` + arg(time.Now().UTC()) + `))`
	}
	if f.BelowConfidence != nil {
		query += ` AND status = ` + arg(string(model.StatusAnalysisComplete)) +
			` AND audit_record IS NOT NULL AND (audit_record->>'confidence_score')::int < ` + arg(*f.BelowConfidence)
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
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list articles")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanPGArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, eris.Wrap(rows.Err(), "postgres: list articles iterate")
}

func (s *PostgresStore) UpdateExtraction(ctx context.Context, id string, u ExtractionUpdate) error {
	if err := s.checkTransition(ctx, id, u.Status); err != nil {
		return err
	}
	now := time.Now().UTC()

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	set := `status = ` + arg(string(u.Status)) +
		`, retry_count = ` + arg(u.RetryCount) +
		`, next_retry_at = ` + arg(u.NextRetryAt) +
		`, last_processed_at = ` + arg(now) +
		`, updated_at = ` + arg(now)
	if u.Text != "" {
		set += `, text = ` + arg(u.Text)
	}
	if u.Title != "" {
		set += `, title = ` + arg(u.Title)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE articles SET `+set+` WHERE id = `+arg(id), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update extraction %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("article not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysis(ctx context.Context, id string, doc *model.Document, status model.Status) error {
	if err := s.checkTransition(ctx, id, status); err != nil {
		return err
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis result")
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET analysis_result = $1, status = $2, last_processed_at = $3, updated_at = $4 WHERE id = $5`,
		docJSON, string(status), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update analysis %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("article not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateAudit(ctx context.Context, id string, doc *model.Document, rec *model.AuditRecord, overall *float64) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal corrected document")
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit record")
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE articles SET analysis_result = $1, audit_record = $2, overall_confidence = $3,
		 last_processed_at = $4, updated_at = $5 WHERE id = $6`,
		docJSON, recJSON, overall, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update audit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("article not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) checkTransition(ctx context.Context, id string, to model.Status) error {
	var cur string
	err := s.pool.QueryRow(ctx, `SELECT status FROM articles WHERE id = $1`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("article not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load status %s", id)
	}
	if !model.CanTransition(model.Status(cur), to) {
		return eris.Errorf("illegal status transition %s -> %s for article %s", cur, to, id)
	}
	return nil
}

func scanPGArticle(row pgx.Row) (*model.Article, error) {
	var a model.Article
	var text *string
	var nextRetryAt, lastProcessedAt *time.Time
	var overall *float64
	var analysisJSON, auditJSON []byte
	var status string

	err := row.Scan(&a.ID, &a.Link, &a.Title, &a.Source, &text, &status,
		&a.RetryCount, &nextRetryAt, &a.SourceCredibility,
		&analysisJSON, &auditJSON, &overall, &lastProcessedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan article")
	}

	a.Status = model.Status(status)
	if text != nil {
		a.Text = *text
	}
	a.NextRetryAt = nextRetryAt
	a.LastProcessedAt = lastProcessedAt
	a.OverallConfidence = overall
	if len(analysisJSON) > 0 {
		a.AnalysisResult = &model.Document{}
		if err := json.Unmarshal(analysisJSON, a.AnalysisResult); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis result")
		}
	}
	if len(auditJSON) > 0 {
		a.AuditRecord = &model.AuditRecord{}
		if err := json.Unmarshal(auditJSON, a.AuditRecord); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal audit record")
		}
	}
	return &a, nil
}

