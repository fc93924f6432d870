package resultstore

import (
	"testing"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

const doc = "file:///srv/app.go"

func record(name string, kind analysis.UnitKind, track analysis.Track, line int, v analysis.Verdict) analysis.Record {
	return analysis.Record{
		DocumentID: doc,
		UnitName:   name,
		Kind:       kind,
		Track:      track,
		StartLine:  line,
		EndLine:    line + 3,
		Model:      "vulscan-small",
		Verdict:    v,
	}
}

func TestUpsertSupersedesByIdentity(t *testing.T) {
	s := New()
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackSecurity, 10, analysis.Benign("ok")))
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackSecurity, 10, analysis.Vulnerable("CWE-89", "injection")))

	got := s.Get(doc, analysis.TrackSecurity)
	if len(got) != 1 {
		t.Fatalf("expected 1 record after re-analysis, got %d", len(got))
	}
	if got[0].Verdict.Kind != analysis.VerdictVulnerable {
		t.Fatalf("expected the newer verdict to win, got %s", got[0].Verdict.Kind)
	}
}

func TestSameNameDifferentKindCoexist(t *testing.T) {
	s := New()
	s.Upsert(record("init", analysis.KindFunction, analysis.TrackSecurity, 5, analysis.Benign("ok")))
	s.Upsert(record("init", analysis.KindConstructor, analysis.TrackSecurity, 40, analysis.Benign("ok")))

	if got := s.Get(doc, analysis.TrackSecurity); len(got) != 2 {
		t.Fatalf("expected 2 records for same name with different kinds, got %d", len(got))
	}
}

func TestTracksAreIndependent(t *testing.T) {
	s := New()
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackSecurity, 10, analysis.Vulnerable("CWE-22", "traversal")))
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackCompliance, 10, analysis.Compliant("ok")))

	if got := s.Get(doc, analysis.TrackSecurity); len(got) != 1 {
		t.Fatalf("security track: expected 1 record, got %d", len(got))
	}
	if got := s.Get(doc, analysis.TrackCompliance); len(got) != 1 {
		t.Fatalf("compliance track: expected 1 record, got %d", len(got))
	}
}

func TestGetOrdersByStartLine(t *testing.T) {
	s := New()
	s.Upsert(record("zeta", analysis.KindFunction, analysis.TrackSecurity, 90, analysis.Benign("ok")))
	s.Upsert(record("alpha", analysis.KindFunction, analysis.TrackSecurity, 3, analysis.Benign("ok")))
	s.Upsert(record("mid", analysis.KindFunction, analysis.TrackSecurity, 40, analysis.Benign("ok")))

	got := s.Get(doc, analysis.TrackSecurity)
	lines := []int{got[0].StartLine, got[1].StartLine, got[2].StartLine}
	if lines[0] != 3 || lines[1] != 40 || lines[2] != 90 {
		t.Fatalf("records not ordered by start line: %v", lines)
	}
}

func TestClearDropsDocument(t *testing.T) {
	s := New()
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackSecurity, 10, analysis.Benign("ok")))
	s.Upsert(record("handler", analysis.KindFunction, analysis.TrackCompliance, 10, analysis.Compliant("ok")))

	s.Clear(doc)

	if got := s.Get(doc, analysis.TrackSecurity); len(got) != 0 {
		t.Fatalf("expected empty store after clear, got %d records", len(got))
	}
	if docs := s.Documents(); len(docs) != 0 {
		t.Fatalf("expected no documents after clear, got %v", docs)
	}
}
