package analyzer

import (
	"sort"
	"sync"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// RunState enum
type RunState string

const (
	RunRunning  RunState = "running"
	RunDone     RunState = "done"
	RunCanceled RunState = "canceled"
)

// RunStatus is the live progress view of one document analysis run.
// Completed counts only ever grow; cached units count as complete from the
// moment they are classified.
type RunStatus struct {
	RunID      string         `json:"run_id"`
	DocumentID string         `json:"document_id"`
	Track      analysis.Track `json:"track"`
	Model      string         `json:"model"`
	State      RunState       `json:"state"`
	Total      int            `json:"total"`
	Analyzed   int            `json:"analyzed"`
	FromCache  int            `json:"from_cache"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Positives  int            `json:"positives"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Completed is the monotonically increasing progress counter.
func (s RunStatus) Completed() int {
	return s.Analyzed + s.FromCache + s.Failed
}

// Runs tracks live and recent run statuses for progress polling.
type Runs struct {
	mu     sync.RWMutex
	byID   map[string]*RunStatus
	maxAge time.Duration
}

func NewRuns() *Runs {
	return &Runs{byID: make(map[string]*RunStatus), maxAge: time.Hour}
}

func (r *Runs) start(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(status.StartedAt)
	copied := status
	r.byID[status.RunID] = &copied
}

// update applies fn to the live status under the lock.
func (r *Runs) update(runID string, fn func(*RunStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.byID[runID]; ok {
		fn(st)
	}
}

// Get returns a snapshot of the run status.
func (r *Runs) Get(runID string) (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byID[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// List returns snapshots of all tracked runs, newest first.
func (r *Runs) List() []RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunStatus, 0, len(r.byID))
	for _, st := range r.byID {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// prune drops finished runs older than maxAge. Caller holds the lock.
func (r *Runs) prune(now time.Time) {
	for id, st := range r.byID {
		if st.State != RunRunning && !st.FinishedAt.IsZero() && now.Sub(st.FinishedAt) > r.maxAge {
			delete(r.byID, id)
		}
	}
}
