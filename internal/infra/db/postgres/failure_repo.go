package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/rucnyz/vulscan-plugin/internal/domain/history"
)

type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.UnitFailure) error {
	const q = `
INSERT INTO analysis_failures
  (run_id, document_id, unit_name, phase, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	run := stringOrDash(f.RunID)
	doc := stringOrDash(f.DocumentID)
	unit := stringOrDash(f.UnitName)
	phase := stringOrDash(f.Phase)
	msg := f.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, run, doc, unit, phase, msg, created)
	return err
}

func (r *FailureRepository) ListByRun(ctx context.Context, runID string, limit int) ([]*domain.UnitFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, run_id, document_id, unit_name, phase, message, created_at
FROM analysis_failures
WHERE run_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.UnitFailure
	for rows.Next() {
		var f domain.UnitFailure
		var created time.Time
		if err := rows.Scan(&f.ID, &f.RunID, &f.DocumentID, &f.UnitName, &f.Phase, &f.Message, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = created
		out = append(out, &f)
	}
	return out, rows.Err()
}
