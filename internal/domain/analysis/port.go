package analysis

import "context"

// AnalyzeRequest carries one unit's worth of context to the remote oracle.
type AnalyzeRequest struct {
	Code      string
	Model     string
	Language  string
	FilePath  string
	StartLine int
	EndLine   int
}

// Analyzer port (interface to the remote analysis oracle)
type Analyzer interface {
	// Analyze runs the security-vulnerability track on one unit.
	Analyze(ctx context.Context, req AnalyzeRequest) (Verdict, error)

	// AnalyzeCompliance runs the compliance track on one unit.
	AnalyzeCompliance(ctx context.Context, req AnalyzeRequest) (Verdict, error)

	// ExtractDependencies runs one round of the context-gathering protocol.
	ExtractDependencies(ctx context.Context, code string, round int, model string) (ExtractionRound, error)

	// TokenUsage reports the caller's remaining allowance.
	TokenUsage(ctx context.Context) (TokenUsage, error)
}

// Store port (per-document result store). Implementations must make upserts
// supersede the record with the same unit identity and track, and must
// tolerate out-of-order completion across units.
type Store interface {
	Get(documentID string, track Track) []Record
	Upsert(rec Record)
	Clear(documentID string)
	Documents() []string
}

// HighlightSink port (decoration consumer)
type HighlightSink interface {
	Apply(documentID string, h Highlight)
	Clear(documentID string)
}

// SymbolProvider port: yields the analyzable units of a document
// (functions, methods, constructors; declarations and destructors excluded).
type SymbolProvider interface {
	Units(ctx context.Context, doc Document) ([]Unit, error)
}

// Notice severity levels
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier port for user-visible transient messages (retry waits, quota
// exhaustion, run summaries). Long waits must never be silent.
type Notifier interface {
	Notify(level Level, message string)
}
