package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rucnyz/vulscan-plugin/internal/application"
	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	"github.com/rucnyz/vulscan-plugin/internal/domain/history"
)

// Refresher is the view-sync hook invoked when a run finishes.
type Refresher interface {
	Refresh(documentID string)
}

// MetricsRecorder receives per-run unit tallies for the daemon counters.
type MetricsRecorder interface {
	RunCompleted(analyzed, fromCache, failed int)
}

// Service implements the analysis orchestration use-cases.
// Safe for concurrent use; per-unit remote calls fan out without an
// artificial concurrency cap and fan back in through the result store.
type Service struct {
	Analyzer analysis.Analyzer
	Store    analysis.Store
	Symbols  analysis.SymbolProvider
	Notifier analysis.Notifier
	Views    Refresher
	Runs     *Runs
	Clock    application.Clock
	Metrics  MetricsRecorder

	// optional persistence/archival; nil disables them
	History  history.Repository
	Failures history.FailureRepository
	Archive  history.ReportArchive

	// DefaultModel is used when a command names no model.
	DefaultModel string

	// MaxExtractRounds bounds the dependency extraction protocol (default 5).
	MaxExtractRounds int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

//
// ==== USE CASES ====
//

// AnalyzeDocumentCommand triggers the save-event flow for a whole document.
type AnalyzeDocumentCommand struct {
	Doc      analysis.Document
	Track    analysis.Track
	Model    string
	FilePath string
}

// StartDocumentAnalysis extracts the document's units, registers a run and
// analyzes in the background with its own cancelable context, so the run
// survives the editor's HTTP request (and is not aborted by it).
func (s *Service) StartDocumentAnalysis(ctx context.Context, cmd AnalyzeDocumentCommand) (string, error) {
	if cmd.Model == "" {
		cmd.Model = s.DefaultModel
	}
	units, err := s.Symbols.Units(ctx, cmd.Doc)
	if err != nil {
		return "", fmt.Errorf("collecting units: %w", err)
	}

	s.warnIfNearTokenLimit(ctx)

	runID := uuid.New().String()
	status := RunStatus{
		RunID:      runID,
		DocumentID: cmd.Doc.URI,
		Track:      cmd.Track,
		Model:      cmd.Model,
		State:      RunRunning,
		Total:      len(units),
		StartedAt:  s.Clock.Now(),
	}
	s.Runs.start(status)

	runCtx, cancel := context.WithCancel(context.Background())
	s.registerCancel(runID, cancel)

	go func() {
		defer cancel()
		defer s.dropCancel(runID)
		s.analyzeDocument(runCtx, runID, cmd, units)
	}()

	return runID, nil
}

// CancelRun requests cooperative cancellation: no new per-unit calls are
// dispatched, but calls already in flight run to completion.
func (s *Service) CancelRun(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// analyzeDocument is the fan-out/fan-in core. Per-unit completion order is
// unspecified; each settled call upserts its record immediately so a
// cancelled run still leaves finished units consistent in the store.
func (s *Service) analyzeDocument(ctx context.Context, runID string, cmd AnalyzeDocumentCommand, units []analysis.Unit) {
	cached, toAnalyze := s.classify(units, cmd.Track, cmd.Model)

	positives := 0
	for _, rec := range cached {
		if rec.Verdict.Positive() {
			positives++
		}
	}
	s.Runs.update(runID, func(st *RunStatus) {
		st.FromCache = len(cached)
		st.Positives = positives
	})

	var wg sync.WaitGroup
	// issued calls are detached from the cancel signal: canceling a run
	// stops new dispatches, it never aborts a request already in flight
	callCtx := context.WithoutCancel(ctx)
	for _, unit := range toAnalyze {
		// dispatch boundary: the only point where cancellation is honored
		if ctx.Err() != nil {
			s.Runs.update(runID, func(st *RunStatus) { st.Skipped++ })
			continue
		}
		wg.Add(1)
		go func(unit analysis.Unit) {
			defer wg.Done()
			s.analyzeUnit(callCtx, runID, cmd, unit)
		}(unit)
	}
	wg.Wait()

	finished := s.Clock.Now()
	canceled := ctx.Err() != nil
	s.Runs.update(runID, func(st *RunStatus) {
		st.FinishedAt = finished
		if canceled {
			st.State = RunCanceled
		} else {
			st.State = RunDone
		}
	})

	status, _ := s.Runs.Get(runID)
	s.notify(analysis.LevelInfo, fmt.Sprintf(
		"%s analysis of %s finished: %d findings (%d analyzed, %d cached, %d failed)",
		cmd.Track, cmd.Doc.URI, status.Positives, status.Analyzed, status.FromCache, status.Failed))

	if s.Metrics != nil {
		s.Metrics.RunCompleted(status.Analyzed, status.FromCache, status.Failed)
	}
	s.persistRun(cmd, status)
	if s.Views != nil {
		s.Views.Refresh(cmd.Doc.URI)
	}
}

// analyzeUnit runs one remote call and settles the unit terminally:
// a record upsert on success, a counted failure otherwise. Failures never
// propagate to sibling units.
func (s *Service) analyzeUnit(ctx context.Context, runID string, cmd AnalyzeDocumentCommand, unit analysis.Unit) {
	verdict, err := s.callTrack(ctx, cmd.Track, analysis.AnalyzeRequest{
		Code:      unit.Text,
		Model:     cmd.Model,
		Language:  unit.Language,
		FilePath:  cmd.FilePath,
		StartLine: unit.StartLine,
		EndLine:   unit.EndLine,
	})
	if err != nil {
		log.Printf("unit analysis failed run=%s doc=%s unit=%s err=%v", runID, cmd.Doc.URI, unit.Name, err)
		s.Runs.update(runID, func(st *RunStatus) { st.Failed++ })
		s.saveFailure(runID, cmd.Doc.URI, unit.Name, "document", err)
		return
	}

	rec := analysis.Record{
		ID:          uuid.New().String(),
		DocumentID:  unit.DocumentID,
		UnitName:    unit.Name,
		Kind:        unit.Kind,
		Track:       cmd.Track,
		Fingerprint: analysis.Hash(unit.Text),
		Model:       cmd.Model,
		Verdict:     verdict,
		StartLine:   unit.StartLine,
		EndLine:     unit.EndLine,
		CreatedAt:   s.Clock.Now(),
	}
	s.Store.Upsert(rec)

	s.Runs.update(runID, func(st *RunStatus) {
		st.Analyzed++
		if verdict.Positive() {
			st.Positives++
		}
	})
}

// classify applies the reuse policy, splitting units into cache hits
// (keyed by unit identity) and the remainder to analyze remotely.
func (s *Service) classify(units []analysis.Unit, track analysis.Track, model string) (map[string]analysis.Record, []analysis.Unit) {
	cached := make(map[string]analysis.Record)
	var toAnalyze []analysis.Unit
	if len(units) == 0 {
		return cached, toAnalyze
	}

	existing := s.Store.Get(units[0].DocumentID, track)
	for _, unit := range units {
		hit := false
		for _, rec := range existing {
			if rec.Reusable(unit, model) {
				cached[unitKey(unit)] = rec
				hit = true
				break
			}
		}
		if !hit {
			toAnalyze = append(toAnalyze, unit)
		}
	}
	return cached, toAnalyze
}

func (s *Service) callTrack(ctx context.Context, track analysis.Track, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	if track == analysis.TrackCompliance {
		return s.Analyzer.AnalyzeCompliance(ctx, req)
	}
	return s.Analyzer.Analyze(ctx, req)
}

// TokenUsage proxies the remote usage endpoint.
func (s *Service) TokenUsage(ctx context.Context) (analysis.TokenUsage, error) {
	return s.Analyzer.TokenUsage(ctx)
}

// ClearDocument drops the document's records and highlights.
func (s *Service) ClearDocument(documentID string) {
	s.Store.Clear(documentID)
	if s.Views != nil {
		s.Views.Refresh(documentID)
	}
}

// Results returns the live records for one document and track.
func (s *Service) Results(documentID string, track analysis.Track) []analysis.Record {
	return s.Store.Get(documentID, track)
}

func (s *Service) warnIfNearTokenLimit(ctx context.Context) {
	usage, err := s.Analyzer.TokenUsage(ctx)
	if err != nil {
		// usage check is advisory; the run itself decides what is fatal
		log.Printf("token usage check failed: %v", err)
		return
	}
	if usage.NearLimit {
		s.notify(analysis.LevelWarn, fmt.Sprintf(
			"token usage at %.0f%% (%d of %d), analysis may hit the quota soon",
			usage.UsagePercentage, usage.TokensUsed, usage.TokenLimit))
	}
}

// persistRun writes the audit trail and report archive when configured.
// Persistence is detached from the run context: a cancelled run still
// records the units that finished.
func (s *Service) persistRun(cmd AnalyzeDocumentCommand, status RunStatus) {
	if s.History == nil && s.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	records := s.Store.Get(cmd.Doc.URI, cmd.Track)

	reportURL := ""
	if s.Archive != nil {
		report := struct {
			Run     RunStatus         `json:"run"`
			Records []analysis.Record `json:"records"`
		}{Run: status, Records: records}
		payload, err := json.Marshal(report)
		if err == nil {
			key := fmt.Sprintf("%s/%s.json", cmd.Track, status.RunID)
			reportURL, err = s.Archive.Upload(ctx, key, payload, "application/json")
		}
		if err != nil {
			log.Printf("report archive failed run=%s err=%v", status.RunID, err)
		}
	}

	if s.History != nil {
		run := &history.Run{
			ID:         history.RunID(status.RunID),
			DocumentID: status.DocumentID,
			Track:      status.Track,
			Model:      status.Model,
			Total:      status.Total,
			Analyzed:   status.Analyzed,
			FromCache:  status.FromCache,
			Failed:     status.Failed,
			Positives:  status.Positives,
			ReportURL:  reportURL,
			StartedAt:  status.StartedAt,
			DurationMS: status.FinishedAt.Sub(status.StartedAt).Milliseconds(),
		}
		if err := s.History.SaveRun(ctx, run); err != nil {
			log.Printf("run history save failed run=%s err=%v", status.RunID, err)
			return
		}
		if err := s.History.SaveRecords(ctx, run.ID, records); err != nil {
			log.Printf("run record save failed run=%s err=%v", status.RunID, err)
		}
	}
}

func (s *Service) saveFailure(runID, documentID, unitName, phase string, cause error) {
	if s.Failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := &history.UnitFailure{
		RunID:      runID,
		DocumentID: documentID,
		UnitName:   unitName,
		Phase:      phase,
		Message:    cause.Error(),
		CreatedAt:  s.Clock.Now(),
	}
	if err := s.Failures.Save(ctx, f); err != nil {
		log.Printf("failure log save failed run=%s unit=%s err=%v", runID, unitName, err)
	}
}

func (s *Service) notify(level analysis.Level, msg string) {
	if s.Notifier != nil {
		s.Notifier.Notify(level, msg)
	}
}

func (s *Service) registerCancel(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancels == nil {
		s.cancels = make(map[string]context.CancelFunc)
	}
	s.cancels[runID] = cancel
}

func (s *Service) dropCancel(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, runID)
}

func unitKey(u analysis.Unit) string {
	return u.Name + "\x00" + string(u.Kind)
}
