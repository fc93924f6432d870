package resultstore

import (
	"sort"
	"sync"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// Memory is the per-document result store. Buckets are created lazily on
// first upsert and dropped on Clear. Upserts replace the record with the
// same (unit name, kind, track); last writer wins when runs interleave.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]analysis.Record
}

func New() *Memory {
	return &Memory{docs: make(map[string][]analysis.Record)}
}

func (m *Memory) Get(documentID string, track analysis.Track) []analysis.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []analysis.Record
	for _, rec := range m.docs[documentID] {
		if rec.Track == track {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine == out[j].StartLine {
			return out[i].UnitName < out[j].UnitName
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out
}

func (m *Memory) Upsert(rec analysis.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.docs[rec.DocumentID]
	for i, old := range bucket {
		if old.UnitName == rec.UnitName && old.Kind == rec.Kind && old.Track == rec.Track {
			bucket[i] = rec
			m.docs[rec.DocumentID] = bucket
			return
		}
	}
	m.docs[rec.DocumentID] = append(bucket, rec)
}

func (m *Memory) Clear(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
}

// Documents lists document IDs that currently hold records.
func (m *Memory) Documents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
