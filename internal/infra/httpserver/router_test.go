package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/application"
	"github.com/rucnyz/vulscan-plugin/internal/application/analyzer"
	"github.com/rucnyz/vulscan-plugin/internal/application/viewsync"
	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	"github.com/rucnyz/vulscan-plugin/internal/infra/highlights"
	"github.com/rucnyz/vulscan-plugin/internal/infra/notify"
	"github.com/rucnyz/vulscan-plugin/internal/infra/resultstore"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	if strings.Contains(req.Code, "exec(") {
		return analysis.Vulnerable("CWE-78", "command injection"), nil
	}
	return analysis.Benign("ok"), nil
}

func (stubAnalyzer) AnalyzeCompliance(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	return analysis.Compliant("ok"), nil
}

func (stubAnalyzer) ExtractDependencies(ctx context.Context, code string, round int, model string) (analysis.ExtractionRound, error) {
	return analysis.ExtractionRound{Round: round, Done: true}, nil
}

func (stubAnalyzer) TokenUsage(ctx context.Context) (analysis.TokenUsage, error) {
	return analysis.TokenUsage{TokensUsed: 10, TokenLimit: 100, UsagePercentage: 10}, nil
}

type stubSymbols struct{}

func (stubSymbols) Units(ctx context.Context, doc analysis.Document) ([]analysis.Unit, error) {
	return []analysis.Unit{
		{DocumentID: doc.URI, Name: "runCmd", Kind: analysis.KindFunction, Language: doc.Language, StartLine: 1, EndLine: 3, Text: "exec(cmd)"},
		{DocumentID: doc.URI, Name: "add", Kind: analysis.KindFunction, Language: doc.Language, StartLine: 5, EndLine: 7, Text: "return a + b"},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *analyzer.Service) {
	t.Helper()
	store := resultstore.New()
	hl := highlights.New()
	views := viewsync.New(store, hl)
	notices := notify.NewCenter(10)
	svc := &analyzer.Service{
		Analyzer: stubAnalyzer{},
		Store:    store,
		Symbols:  stubSymbols{},
		Notifier: notices,
		Views:    views,
		Runs:     analyzer.NewRuns(),
		Clock:    application.SystemClock{},
	}
	h := NewRouter(svc, views, hl, notices, nil, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAnalyzeDocumentFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/documents/analyze", map[string]any{
		"uri":      "file:///proj/main.py",
		"language": "python",
		"text":     "def runCmd(): ...",
		"track":    "security",
		"model":    "vulscan-small",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("analyze status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	var queued struct {
		RunID string `json:"run_id"`
	}
	decodeInto(t, resp, &queued)
	if queued.RunID == "" {
		t.Fatal("run_id missing from analyze response")
	}

	// poll progress until the background run settles
	var status analyzer.RunStatus
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := http.Get(srv.URL + "/v1/runs/" + queued.RunID)
		if err != nil {
			t.Fatalf("GET run: %v", err)
		}
		decodeInto(t, r, &status)
		if status.State != analyzer.RunRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish: %+v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status.State != analyzer.RunDone || status.Analyzed != 2 || status.Positives != 1 {
		t.Fatalf("unexpected final status %+v", status)
	}

	r, err := http.Get(srv.URL + "/v1/documents/results?uri=file:///proj/main.py&track=security")
	if err != nil {
		t.Fatalf("GET results: %v", err)
	}
	var records []analysis.Record
	decodeInto(t, r, &records)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// focusing the document surfaces its highlights
	resp = postJSON(t, srv.URL+"/v1/focus", map[string]any{"uri": "file:///proj/main.py"})
	var focus struct {
		Highlights []analysis.Highlight `json:"highlights"`
	}
	decodeInto(t, resp, &focus)
	if len(focus.Highlights) != 1 || focus.Highlights[0].UnitName != "runCmd" {
		t.Fatalf("unexpected highlights %+v", focus.Highlights)
	}
}

func TestAnalyzeDocumentValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []map[string]any{
		{"uri": "file:///x.py", "language": "python", "track": "privacy"},
		{"uri": "file:///x.py", "language": "cobol", "track": "security"},
		{"uri": "https://evil.example/x.py", "language": "python", "track": "security"},
	}
	for _, body := range cases {
		resp := postJSON(t, srv.URL+"/v1/documents/analyze", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/runs/nope")
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAnalyzeSelection(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/selection/analyze", map[string]any{
		"uri":        "file:///proj/main.py",
		"language":   "python",
		"code":       "exec(user_input)",
		"start_line": 10,
		"end_line":   12,
		"track":      "security",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("selection status = %d, want 200", resp.StatusCode)
	}
	var rec analysis.Record
	decodeInto(t, resp, &rec)
	if rec.Kind != analysis.KindSelection || rec.Verdict.Kind != analysis.VerdictVulnerable {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestNotificationsCursor(t *testing.T) {
	srv, svc := newTestServer(t)
	svc.Notifier.Notify(analysis.LevelWarn, "first")
	svc.Notifier.Notify(analysis.LevelInfo, "second")

	resp, err := http.Get(srv.URL + "/v1/notifications?after=1")
	if err != nil {
		t.Fatalf("GET notifications: %v", err)
	}
	var notes []notify.Notice
	decodeInto(t, resp, &notes)
	if len(notes) != 1 || notes[0].Message != "second" {
		t.Fatalf("unexpected notices %+v", notes)
	}
}

func TestTokenUsageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/token-usage")
	if err != nil {
		t.Fatalf("GET token-usage: %v", err)
	}
	var usage analysis.TokenUsage
	decodeInto(t, resp, &usage)
	if usage.TokenLimit != 100 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestHistoryWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/history?uri=file:///x.py")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
