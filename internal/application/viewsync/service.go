package viewsync

import (
	"sync"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// Service reconciles the result store with the currently focused editor
// surface. It never recomputes verdicts: the visible highlight set is a pure
// derivation of store contents, so Refresh is idempotent.
type Service struct {
	Store analysis.Store
	Sink  analysis.HighlightSink

	mu      sync.Mutex
	focused string
}

func New(store analysis.Store, sink analysis.HighlightSink) *Service {
	return &Service{Store: store, Sink: sink}
}

// SetFocus records the active document and immediately reapplies its
// highlights, so analysis that finished while another file was focused
// becomes visible upon return.
func (s *Service) SetFocus(documentID string) {
	s.mu.Lock()
	s.focused = documentID
	s.mu.Unlock()
	s.apply(documentID)
}

// Focused returns the active document ID.
func (s *Service) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Refresh re-derives the highlight set for documentID if it is the focused
// surface. Refreshes for background documents are deliberately dropped;
// their records stay in the store and reappear on the next focus change.
func (s *Service) Refresh(documentID string) {
	s.mu.Lock()
	focused := s.focused
	s.mu.Unlock()
	if documentID != focused {
		return
	}
	s.apply(documentID)
}

// apply clears and reapplies decorations for every positive record on both
// tracks. Clearing first keeps repeated calls convergent.
func (s *Service) apply(documentID string) {
	s.Sink.Clear(documentID)
	for _, track := range []analysis.Track{analysis.TrackSecurity, analysis.TrackCompliance} {
		for _, rec := range s.Store.Get(documentID, track) {
			if !rec.Verdict.Positive() {
				continue
			}
			s.Sink.Apply(documentID, analysis.Highlight{
				UnitName:  rec.UnitName,
				Track:     rec.Track,
				StartLine: rec.StartLine,
				EndLine:   rec.EndLine,
				Verdict:   rec.Verdict,
			})
		}
	}
}
