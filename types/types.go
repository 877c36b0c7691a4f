package types

import "time"

// ContextSnippet is one retrieved code fragment with provenance. Snippets are
// immutable once produced by a retriever and are discarded after mixing.
type ContextSnippet struct {
	FilePath  string
	Content   string
	StartLine int // 1-indexed
	EndLine   int // 1-indexed, inclusive
	// Score is the retriever's native relevance hint. It is advisory only;
	// the mixer ranks by reciprocal rank fusion, not by this value.
	Score float64
}

// Chars returns the content length used for budget accounting.
func (s ContextSnippet) Chars() int { return len(s.Content) }

// RetrieverStats summarizes one retriever's contribution to a mixed result.
type RetrieverStats struct {
	// Retrieved is the number of snippets the retriever returned.
	Retrieved int
	// Kept is the number of snippets that survived fusion, dedup and budget.
	Kept int
	// PositionBitmap has bit p set when output position p (p < 64) came from
	// this retriever.
	PositionBitmap uint64
	// Duration is the retriever's wall-clock retrieval time.
	Duration time.Duration
}

// MixSummary is the observability record emitted with every mix.
type MixSummary struct {
	Strategy   string
	TotalChars int
	Duration   time.Duration
	Retrievers map[string]RetrieverStats
}

// MixedContext is the deduplicated, budget-truncated output of the mixer.
// No two snippets share a file path, and the summed content length never
// exceeds the configured character budget.
type MixedContext struct {
	Snippets []ContextSnippet
	Summary  MixSummary
}
