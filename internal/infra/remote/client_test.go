package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r := NewRetrier(0, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return NewClient(srv.URL, "test-key", r)
}

func TestAnalyzeMapsVulnerableVerdict(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Write([]byte(`{"status":"success","result":{"status":"yes","cweType":"CWE-89","response":"string concat into query"}}`))
	})

	v, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "db.Query(q + input)", Model: "vulscan-small"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != analysis.VerdictVulnerable || v.CWE != "CWE-89" {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestAnalyzeMapsBenignVerdict(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","result":{"status":"no","response":"parameterized"}}`))
	})

	v, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != analysis.VerdictBenign {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestAnalyzeRejectsUnknownStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","result":{"status":"maybe"}}`))
	})

	_, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if !errors.Is(err, analysis.ErrProtocol) {
		t.Fatalf("expected protocol error for unknown status, got %v", err)
	}
}

func TestForbiddenMapsToQuota(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"monthly token quota exhausted"}`))
	})

	_, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if !errors.Is(err, analysis.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestRateLimitDelayFromHeader(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ExtractDependencies(context.Background(), "x", 1, "m")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
	if rl.RetryAfter != 17*time.Second {
		t.Fatalf("expected 17s from header, got %s", rl.RetryAfter)
	}
}

func TestRateLimitDelayFromMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"Rate limit hit, try again in 25 seconds"}`))
	})

	_, err := c.ExtractDependencies(context.Background(), "x", 1, "m")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
	if rl.RetryAfter != 25*time.Second {
		t.Fatalf("expected 25s from message, got %s", rl.RetryAfter)
	}
}

func TestRateLimitDefaultDelay(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ExtractDependencies(context.Background(), "x", 1, "m")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
	if rl.RetryAfter != 60*time.Second {
		t.Fatalf("expected 60s default, got %s", rl.RetryAfter)
	}
}

func TestGenericErrorCarriesDetail(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"upstream model unavailable"}`))
	})

	_, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected service error, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway || se.Detail != "upstream model unavailable" {
		t.Fatalf("unexpected service error %+v", se)
	}
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if !errors.Is(err, analysis.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestComplianceMapsViolation(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze-eu-ai-act" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","result":{"status":"yes","article":"Article 10","response":"training data lacks governance"}}`))
	})

	v, err := c.AnalyzeCompliance(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != analysis.VerdictViolation || v.Article != "Article 10" {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestTokenUsage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/my-token-usage" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"tokens_used":900,"token_limit":1000,"usage_percentage":90,"is_near_limit":true}`))
	})

	u, err := c.TokenUsage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.TokensUsed != 900 || !u.NearLimit {
		t.Fatalf("unexpected usage %+v", u)
	}
}

func TestRetryThenSuccessAgainstServer(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"status":"success","result":{"status":"no","response":"ok"}}`))
	}))
	defer srv.Close()

	r := NewRetrier(2, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	c := NewClient(srv.URL, "", r)

	v, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Code: "x", Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if v.Kind != analysis.VerdictBenign {
		t.Fatalf("unexpected verdict %+v", v)
	}
}
