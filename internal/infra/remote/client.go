package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

const defaultRetryDelay = 60 * time.Second

// Client talks JSON over HTTP to the analysis service and maps its status
// codes onto the domain error taxonomy. Every public method is one logical
// operation run through the retrier.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	retrier *Retrier
}

func NewClient(baseURL, apiKey string, retrier *Retrier) *Client {
	return &Client{
		http:    &http.Client{Timeout: 120 * time.Second},
		base:    strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		retrier: retrier,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Detail string          `json:"detail"`
}

type analyzeRequest struct {
	Code      string `json:"code"`
	Model     string `json:"model"`
	Language  string `json:"language,omitempty"`
	FilePath  string `json:"filePath,omitempty"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

type analyzeResult struct {
	Status   string `json:"status"`
	CWEType  string `json:"cweType"`
	Model    string `json:"model"`
	Response string `json:"response"`
}

type complianceResult struct {
	Status        string `json:"status"`
	Article       string `json:"article"`
	ViolationType string `json:"violationType"`
	Response      string `json:"response"`
}

type extractRequest struct {
	Code  string `json:"code"`
	Round int    `json:"round"`
	Model string `json:"model"`
}

type extractResult struct {
	Dependencies []string `json:"dependencies"`
	Done         bool     `json:"done"`
}

// Analyze implements the security track against POST /analyze.
func (c *Client) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	var verdict analysis.Verdict
	err := c.retrier.Do(ctx, "analyze", func(ctx context.Context) error {
		var res analyzeResult
		if err := c.post(ctx, "/analyze", analyzeRequest{
			Code:      req.Code,
			Model:     req.Model,
			Language:  req.Language,
			FilePath:  req.FilePath,
			StartLine: req.StartLine,
			EndLine:   req.EndLine,
		}, &res); err != nil {
			return err
		}
		switch res.Status {
		case "yes":
			verdict = analysis.Vulnerable(res.CWEType, res.Response)
		case "no":
			verdict = analysis.Benign(res.Response)
		default:
			return fmt.Errorf("%w: unknown analyze status %q", analysis.ErrProtocol, res.Status)
		}
		return nil
	})
	return verdict, err
}

// AnalyzeCompliance implements the compliance track against POST /analyze-eu-ai-act.
func (c *Client) AnalyzeCompliance(ctx context.Context, req analysis.AnalyzeRequest) (analysis.Verdict, error) {
	var verdict analysis.Verdict
	err := c.retrier.Do(ctx, "analyze-compliance", func(ctx context.Context) error {
		var res complianceResult
		if err := c.post(ctx, "/analyze-eu-ai-act", analyzeRequest{
			Code:      req.Code,
			Model:     req.Model,
			FilePath:  req.FilePath,
			StartLine: req.StartLine,
			EndLine:   req.EndLine,
		}, &res); err != nil {
			return err
		}
		switch res.Status {
		case "yes":
			article := res.Article
			if article == "" {
				article = res.ViolationType
			}
			verdict = analysis.Violation(article, res.Response)
		case "no":
			verdict = analysis.Compliant(res.Response)
		default:
			return fmt.Errorf("%w: unknown compliance status %q", analysis.ErrProtocol, res.Status)
		}
		return nil
	})
	return verdict, err
}

// ExtractDependencies runs one round of POST /extract.
func (c *Client) ExtractDependencies(ctx context.Context, code string, round int, model string) (analysis.ExtractionRound, error) {
	out := analysis.ExtractionRound{Round: round}
	err := c.retrier.Do(ctx, "extract-dependencies", func(ctx context.Context) error {
		var res extractResult
		if err := c.post(ctx, "/extract", extractRequest{Code: code, Round: round, Model: model}, &res); err != nil {
			return err
		}
		out.Dependencies = res.Dependencies
		out.Done = res.Done
		return nil
	})
	return out, err
}

// TokenUsage calls GET /my-token-usage.
func (c *Client) TokenUsage(ctx context.Context) (analysis.TokenUsage, error) {
	var usage analysis.TokenUsage
	err := c.retrier.Do(ctx, "token-usage", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/my-token-usage", nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("token usage request: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("token usage response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return c.statusError(resp, body)
		}
		if err := json.Unmarshal(body, &usage); err != nil {
			return fmt.Errorf("%w: %v", analysis.ErrProtocol, err)
		}
		return nil
	})
	return usage, err
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrProtocol, err)
	}
	switch env.Status {
	case "success":
	case "error":
		detail := env.Detail
		if detail == "" {
			detail = "service reported an error"
		}
		return &ServiceError{StatusCode: resp.StatusCode, Detail: detail}
	default:
		return fmt.Errorf("%w: unknown envelope status %q", analysis.ErrProtocol, env.Status)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrProtocol, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) statusError(resp *http.Response, body []byte) error {
	detail := errorDetail(body)
	switch resp.StatusCode {
	case http.StatusForbidden:
		return &QuotaError{Detail: detail}
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryDelay(resp, detail), Detail: detail}
	default:
		return &ServiceError{StatusCode: resp.StatusCode, Detail: detail}
	}
}

func errorDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

var retryAfterText = regexp.MustCompile(`try again in (\d+) seconds?`)

// retryDelay picks the wait the service asked for: the Retry-After header,
// a "try again in N seconds" message fragment, or 60s when neither is set.
func retryDelay(resp *http.Response, detail string) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if m := retryAfterText.FindStringSubmatch(strings.ToLower(detail)); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryDelay
}
