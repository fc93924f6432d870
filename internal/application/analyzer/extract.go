package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

const defaultMaxExtractRounds = 5

// AnalyzeSelectionCommand triggers the manual flow for one selected span.
type AnalyzeSelectionCommand struct {
	Doc       analysis.Document
	Code      string
	StartLine int
	EndLine   int
	Track     analysis.Track
	Model     string
	FilePath  string
}

// AnalyzeSelection runs the manual flow synchronously: reuse check, then
// the dependency extraction rounds, then one deep analysis call. Unlike the
// per-unit batch flow, failures here bubble to the caller.
func (s *Service) AnalyzeSelection(ctx context.Context, cmd AnalyzeSelectionCommand) (analysis.Record, error) {
	if cmd.Model == "" {
		cmd.Model = s.DefaultModel
	}
	unit := analysis.Unit{
		DocumentID: cmd.Doc.URI,
		Name:       fmt.Sprintf("selection:%d-%d", cmd.StartLine, cmd.EndLine),
		Kind:       analysis.KindSelection,
		Language:   cmd.Doc.Language,
		FilePath:   cmd.FilePath,
		StartLine:  cmd.StartLine,
		EndLine:    cmd.EndLine,
		Text:       cmd.Code,
	}

	for _, rec := range s.Store.Get(unit.DocumentID, cmd.Track) {
		if rec.Reusable(unit, cmd.Model) {
			s.notify(analysis.LevelInfo, fmt.Sprintf("selection unchanged, reusing cached %s verdict", rec.Verdict.Kind))
			return rec, nil
		}
	}

	if _, err := s.ExtractDependencies(ctx, cmd.Code, cmd.Model); err != nil {
		return analysis.Record{}, fmt.Errorf("dependency extraction: %w", err)
	}

	verdict, err := s.callTrack(ctx, cmd.Track, analysis.AnalyzeRequest{
		Code:      cmd.Code,
		Model:     cmd.Model,
		Language:  cmd.Doc.Language,
		FilePath:  cmd.FilePath,
		StartLine: cmd.StartLine,
		EndLine:   cmd.EndLine,
	})
	if err != nil {
		s.saveFailure("", cmd.Doc.URI, unit.Name, "selection", err)
		return analysis.Record{}, err
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
	if s.Views != nil {
		s.Views.Refresh(unit.DocumentID)
	}
	return rec, nil
}

// ExtractDependencies runs the bounded iterative context-gathering protocol:
// round by round until the service signals done or the round cap is hit.
// The cap guarantees liveness even if the service never signals completion.
func (s *Service) ExtractDependencies(ctx context.Context, code, model string) ([]analysis.ExtractionRound, error) {
	maxRounds := s.MaxExtractRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxExtractRounds
	}

	var rounds []analysis.ExtractionRound
	for round := 1; round <= maxRounds; round++ {
		res, err := s.Analyzer.ExtractDependencies(ctx, code, round, model)
		if err != nil {
			return rounds, err
		}
		rounds = append(rounds, res)
		s.notify(analysis.LevelInfo, describeRound(res))
		if res.Done {
			break
		}
	}
	return rounds, nil
}

func describeRound(r analysis.ExtractionRound) string {
	if len(r.Dependencies) == 0 {
		return fmt.Sprintf("dependency round %d: no further context needed", r.Round)
	}
	return fmt.Sprintf("dependency round %d: gathering %s", r.Round, strings.Join(r.Dependencies, ", "))
}
