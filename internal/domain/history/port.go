package history

import (
	"context"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// Repository port for persisting and querying run history
type Repository interface {
	SaveRun(ctx context.Context, run *Run) error
	SaveRecords(ctx context.Context, runID RunID, records []analysis.Record) error
	LatestByDocument(ctx context.Context, documentID string, limit int) ([]*Run, error)
	Paginate(ctx context.Context, page, pageSize int) ([]*Run, error)
}

// FailureRepository port for persisting per-unit analysis errors
type FailureRepository interface {
	Save(ctx context.Context, f *UnitFailure) error
	ListByRun(ctx context.Context, runID string, limit int) ([]*UnitFailure, error)
}

// ReportArchive port for archiving run reports to object storage
type ReportArchive interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}
