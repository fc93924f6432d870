package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	domain "github.com/rucnyz/vulscan-plugin/internal/domain/history"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// SaveRun insert/update run audit row
func (r *HistoryRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO analysis_runs
(id, document_id, track, model, total, analyzed, from_cache, failed, positives,
 report_url, started_at, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 total=VALUES(total), analyzed=VALUES(analyzed), from_cache=VALUES(from_cache),
 failed=VALUES(failed), positives=VALUES(positives),
 report_url=VALUES(report_url), duration_ms=VALUES(duration_ms);
`
	doc := stringOrDash(run.DocumentID)
	track := stringOrDash(string(run.Track))
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		run.ID, doc, track, run.Model,
		run.Total, run.Analyzed, run.FromCache, run.Failed, run.Positives,
		run.ReportURL, started, run.DurationMS,
	)
	return err
}

// SaveRecords persists the run's verdict records, superseding by record id
func (r *HistoryRepository) SaveRecords(ctx context.Context, runID domain.RunID, records []analysis.Record) error {
	const q = `
INSERT INTO analysis_records
(id, run_id, document_id, unit_name, kind, track, fingerprint, model,
 verdict_kind, cwe, article, explanation, start_line, end_line, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 run_id=VALUES(run_id), verdict_kind=VALUES(verdict_kind), cwe=VALUES(cwe),
 article=VALUES(article), explanation=VALUES(explanation),
 fingerprint=VALUES(fingerprint), model=VALUES(model);
`
	for _, rec := range records {
		created := rec.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := r.db.ExecContext(ctx, q,
			rec.ID, runID, rec.DocumentID, rec.UnitName, rec.Kind, rec.Track,
			int64(rec.Fingerprint), rec.Model,
			rec.Verdict.Kind, rec.Verdict.CWE, rec.Verdict.Article, rec.Verdict.Explanation,
			rec.StartLine, rec.EndLine, created,
		); err != nil {
			return err
		}
	}
	return nil
}

// LatestByDocument returns the most recent runs for one document
func (r *HistoryRepository) LatestByDocument(ctx context.Context, documentID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, document_id, track, model, total, analyzed, from_cache, failed,
       positives, report_url, started_at, duration_ms
FROM analysis_runs
WHERE document_id=? ORDER BY started_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Paginate with offset + limit (classic pagination)
func (r *HistoryRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, document_id, track, model, total, analyzed, from_cache, failed,
       positives, report_url, started_at, duration_ms
FROM analysis_runs
ORDER BY started_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*domain.Run, error) {
	var out []*domain.Run
	for rows.Next() {
		var run domain.Run
		var started time.Time
		if err := rows.Scan(
			&run.ID, &run.DocumentID, &run.Track, &run.Model,
			&run.Total, &run.Analyzed, &run.FromCache, &run.Failed,
			&run.Positives, &run.ReportURL, &started, &run.DurationMS,
		); err != nil {
			return nil, err
		}
		run.StartedAt = started
		out = append(out, &run)
	}
	return out, rows.Err()
}
