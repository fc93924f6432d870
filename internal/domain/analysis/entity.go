package analysis

import (
	"time"
)

// Track enum: the two independent verdict categories kept per unit
type Track string

const (
	TrackSecurity   Track = "security"
	TrackCompliance Track = "compliance"
)

// UnitKind enum
type UnitKind string

const (
	KindFunction    UnitKind = "function"
	KindMethod      UnitKind = "method"
	KindConstructor UnitKind = "constructor"
	KindSelection   UnitKind = "selection"
)

// Document is the snapshot of an editor buffer handed to the engine.
type Document struct {
	URI      string `json:"uri"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Unit is one independently analyzable span of code. Immutable snapshot
// per analysis pass; lines are 1-based and inclusive.
type Unit struct {
	DocumentID string   `json:"document_id"`
	Name       string   `json:"name"`
	Kind       UnitKind `json:"kind"`
	Language   string   `json:"language"`
	FilePath   string   `json:"file_path,omitempty"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Text       string   `json:"text"`
}

// VerdictKind enum
type VerdictKind string

const (
	VerdictVulnerable VerdictKind = "vulnerable"
	VerdictBenign     VerdictKind = "benign"
	VerdictViolation  VerdictKind = "violation"
	VerdictCompliant  VerdictKind = "compliant"
)

// Verdict is the tagged outcome of analyzing one unit on one track.
// CWE is set only for VerdictVulnerable, Article only for VerdictViolation.
type Verdict struct {
	Kind        VerdictKind `json:"kind"`
	CWE         string      `json:"cwe,omitempty"`
	Article     string      `json:"article,omitempty"`
	Explanation string      `json:"explanation,omitempty"`
}

// Positive reports whether the verdict should be surfaced as a finding.
func (v Verdict) Positive() bool {
	return v.Kind == VerdictVulnerable || v.Kind == VerdictViolation
}

// Track returns the analysis track the verdict belongs to.
func (v Verdict) Track() Track {
	if v.Kind == VerdictViolation || v.Kind == VerdictCompliant {
		return TrackCompliance
	}
	return TrackSecurity
}

func Vulnerable(cwe, explanation string) Verdict {
	return Verdict{Kind: VerdictVulnerable, CWE: cwe, Explanation: explanation}
}

func Benign(explanation string) Verdict {
	return Verdict{Kind: VerdictBenign, Explanation: explanation}
}

func Violation(article, explanation string) Verdict {
	return Verdict{Kind: VerdictViolation, Article: article, Explanation: explanation}
}

func Compliant(explanation string) Verdict {
	return Verdict{Kind: VerdictCompliant, Explanation: explanation}
}

// Record is the last-known verdict for a unit identity on one track.
// Exactly one live record exists per (document, name, kind, track).
type Record struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	UnitName    string      `json:"unit_name"`
	Kind        UnitKind    `json:"kind"`
	Track       Track       `json:"track"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Model       string      `json:"model"`
	Verdict     Verdict     `json:"verdict"`
	StartLine   int         `json:"start_line"`
	EndLine     int         `json:"end_line"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Reusable reports whether the cached record may stand in for a fresh
// analysis of unit under model. Staleness is a fingerprint mismatch, not
// an age check; a model switch invalidates every prior record implicitly.
func (r Record) Reusable(unit Unit, model string) bool {
	return r.UnitName == unit.Name &&
		r.Kind == unit.Kind &&
		r.Fingerprint == Hash(unit.Text) &&
		r.Model == model
}

// Highlight is what a decoration consumer draws for a positive record.
type Highlight struct {
	UnitName  string  `json:"unit_name"`
	Track     Track   `json:"track"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Verdict   Verdict `json:"verdict"`
}

// TokenUsage mirrors the remote usage endpoint.
type TokenUsage struct {
	TokensUsed      int64   `json:"tokens_used"`
	TokenLimit      int64   `json:"token_limit"`
	UsagePercentage float64 `json:"usage_percentage"`
	NearLimit       bool    `json:"is_near_limit"`
}

// ExtractionRound is one round of the dependency extraction protocol.
type ExtractionRound struct {
	Round        int      `json:"round"`
	Dependencies []string `json:"dependencies"`
	Done         bool     `json:"done"`
}
