package highlights

import (
	"sync"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// State is the decoration sink the editor extension polls: the daemon keeps
// the current highlight set per document, the extension draws it.
type State struct {
	mu   sync.RWMutex
	docs map[string][]analysis.Highlight
}

func New() *State {
	return &State{docs: make(map[string][]analysis.Highlight)}
}

func (s *State) Apply(documentID string, h analysis.Highlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = append(s.docs[documentID], h)
}

func (s *State) Clear(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
}

// Get returns a copy of the document's current highlight set.
func (s *State) Get(documentID string) []analysis.Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]analysis.Highlight, len(s.docs[documentID]))
	copy(out, s.docs[documentID])
	return out
}
