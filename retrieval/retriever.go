// Package retrieval fuses candidate code snippets from heterogeneous
// retrievers into a ranked, budget-constrained context list.
package retrieval

import (
	"context"
	"time"

	"codeassist/editor"
	"codeassist/types"
)

// DefaultRetrieveTimeout bounds a single retriever when the request carries
// no MaxMs hint. Network-backed retrievers must return partial or empty
// results instead of blocking the mixer's fan-in.
const DefaultRetrieveTimeout = 300 * time.Millisecond

// Options describes one retrieval request.
type Options struct {
	// FilePath is the document the completion is for.
	FilePath string
	// Position is the cursor location, 0-indexed.
	Position editor.Position
	// Prefix and Suffix are budget-trimmed windows around the cursor.
	Prefix string
	Suffix string
	// Query is an optional explicit query (chat/fixup instruction); empty
	// for plain completion requests.
	Query string
	// LanguageID is the document's language identifier.
	LanguageID string
	// MaxChars is the mixer's character budget, passed through so retrievers
	// can size their own result sets.
	MaxChars int
	// MaxMs caps a single retriever's work. Zero means
	// DefaultRetrieveTimeout.
	MaxMs time.Duration
}

// Timeout resolves the effective per-retriever deadline.
func (o Options) Timeout() time.Duration {
	if o.MaxMs > 0 {
		return o.MaxMs
	}
	return DefaultRetrieveTimeout
}

// Retriever produces ranked context snippets from one information source.
// Result order encodes the retriever's own relevance ranking: index 0 is its
// best candidate.
//
// Retrieve must be safe to call concurrently with other retrievers. A failed
// retriever returns an error and is treated by the mixer as having returned
// nothing; it never aborts the other retrievers.
type Retriever interface {
	Identifier() string
	Retrieve(ctx context.Context, opts Options) ([]types.ContextSnippet, error)
	IsSupportedForLanguageID(languageID string) bool
	Dispose()
}
