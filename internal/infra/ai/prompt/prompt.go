package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

// SecuritySystem provides strict directions and schema for the
// vulnerability verdict JSON output.
func SecuritySystem() string {
	return `You are a senior application security analyst. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- status is "yes" when the code contains an exploitable vulnerability, "no" otherwise.
- cweType is the CWE identifier (e.g. "CWE-89") and must be set only when status is "yes".
- response is a short explanation of the verdict.

Schema (example with empty values):
{
  "status": "<yes|no>",
  "cweType": "<string>",
  "response": "<string>"
}`
}

// ComplianceSystem provides the schema for the EU AI Act compliance verdict.
func ComplianceSystem() string {
	return `You are a compliance reviewer for the EU AI Act. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- status is "yes" when the code violates an EU AI Act obligation, "no" otherwise.
- article is the violated article (e.g. "Article 10") and must be set only when status is "yes".
- response is a short explanation of the verdict.

Schema (example with empty values):
{
  "status": "<yes|no>",
  "article": "<string>",
  "response": "<string>"
}`
}

// ExtractSystem provides the schema for one dependency-extraction round.
func ExtractSystem() string {
	return `You are preparing code for a security review. Name the identifiers (functions, classes, globals) referenced by the code whose definitions you still need to see before you can judge it. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- dependencies is the list of identifier names still needed; empty when nothing is missing.
- done is true when you have enough context to analyze the code.

Schema (example with empty values):
{
  "dependencies": ["<string>"],
  "done": false
}`
}

// User builds the per-unit user message around the code under review.
func User(req analysis.AnalyzeRequest) string {
	var b strings.Builder
	if req.FilePath != "" {
		fmt.Fprintf(&b, "File: %s (lines %d-%d)\n", req.FilePath, req.StartLine, req.EndLine)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	b.WriteString("Analyze this code and respond with the JSON per schema.\n\n")
	b.WriteString(req.Code)
	return b.String()
}

// ExtractUser builds the user message for one extraction round.
func ExtractUser(code string, round int) string {
	return fmt.Sprintf("Round %d. List the missing definitions for this code and respond with the JSON per schema.\n\n%s", round, code)
}

type securityResult struct {
	Status   string `json:"status"`
	CWEType  string `json:"cweType"`
	Response string `json:"response"`
}

type complianceResult struct {
	Status   string `json:"status"`
	Article  string `json:"article"`
	Response string `json:"response"`
}

type extractResult struct {
	Dependencies []string `json:"dependencies"`
	Done         bool     `json:"done"`
}

// ParseSecurity decodes the model's vulnerability verdict JSON.
func ParseSecurity(raw string) (analysis.Verdict, error) {
	var res securityResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &res); err != nil {
		return analysis.Verdict{}, fmt.Errorf("%w: decode security verdict: %v", analysis.ErrProtocol, err)
	}
	switch strings.ToLower(res.Status) {
	case "yes":
		return analysis.Vulnerable(res.CWEType, res.Response), nil
	case "no":
		return analysis.Benign(res.Response), nil
	default:
		return analysis.Verdict{}, fmt.Errorf("%w: unexpected status %q", analysis.ErrProtocol, res.Status)
	}
}

// ParseCompliance decodes the model's compliance verdict JSON.
func ParseCompliance(raw string) (analysis.Verdict, error) {
	var res complianceResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &res); err != nil {
		return analysis.Verdict{}, fmt.Errorf("%w: decode compliance verdict: %v", analysis.ErrProtocol, err)
	}
	switch strings.ToLower(res.Status) {
	case "yes":
		return analysis.Violation(res.Article, res.Response), nil
	case "no":
		return analysis.Compliant(res.Response), nil
	default:
		return analysis.Verdict{}, fmt.Errorf("%w: unexpected status %q", analysis.ErrProtocol, res.Status)
	}
}

// ParseExtraction decodes one extraction round's JSON.
func ParseExtraction(raw string, round int) (analysis.ExtractionRound, error) {
	var res extractResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &res); err != nil {
		return analysis.ExtractionRound{}, fmt.Errorf("%w: decode extraction round: %v", analysis.ErrProtocol, err)
	}
	return analysis.ExtractionRound{Round: round, Dependencies: res.Dependencies, Done: res.Done}, nil
}

// stripFences tolerates models that wrap JSON in markdown fences despite
// the instructions.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
