package history

import (
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// RunID identifier type
type RunID string

// Run is the persisted audit entry for one completed document analysis run.
type Run struct {
	ID         RunID          `json:"id"`
	DocumentID string         `json:"document_id"`
	Track      analysis.Track `json:"track"`
	Model      string         `json:"model"`
	Total      int            `json:"total"`
	Analyzed   int            `json:"analyzed"`
	FromCache  int            `json:"from_cache"`
	Failed     int            `json:"failed"`
	Positives  int            `json:"positives"`
	ReportURL  string         `json:"report_url,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

// UnitFailure is a persisted per-unit analysis error entry
type UnitFailure struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	DocumentID string    `json:"document_id"`
	UnitName   string    `json:"unit_name"`
	Phase      string    `json:"phase,omitempty"` // document | selection | extraction
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
