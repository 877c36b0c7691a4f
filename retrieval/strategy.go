package retrieval

// Strategy names reported in mix summaries.
const (
	StrategyNone              = "none"
	StrategyJaccardSimilarity = "jaccard-similarity"
	StrategyLocalMixed        = "local-mixed"
)

// Strategy is the set of retrievers to run for one request.
type Strategy struct {
	Name       string
	Retrievers []Retriever
}

// StrategyConfig selects which retrievers participate.
type StrategyConfig struct {
	// Name picks the base strategy: "jaccard-similarity" runs only the local
	// lexical retriever, "local-mixed" runs every configured retriever,
	// "none" disables retrieval.
	Name string
}

// StrategyFactory resolves the retriever set for a language and
// configuration. Retrievers that don't support the language are excluded up
// front, never invoked-then-filtered.
type StrategyFactory struct {
	config     StrategyConfig
	jaccard    Retriever
	additional []Retriever
}

// NewStrategyFactory creates a factory. jaccard is the local lexical
// retriever; additional holds the optional embeddings/graph/remote
// retrievers (nil entries are skipped).
func NewStrategyFactory(config StrategyConfig, jaccard Retriever, additional ...Retriever) *StrategyFactory {
	f := &StrategyFactory{config: config, jaccard: jaccard}
	for _, r := range additional {
		if r != nil {
			f.additional = append(f.additional, r)
		}
	}
	return f
}

// For returns the strategy for a language ID.
func (f *StrategyFactory) For(languageID string) *Strategy {
	switch f.config.Name {
	case StrategyJaccardSimilarity:
		return &Strategy{
			Name:       StrategyJaccardSimilarity,
			Retrievers: supported([]Retriever{f.jaccard}, languageID),
		}
	case StrategyLocalMixed:
		all := append([]Retriever{f.jaccard}, f.additional...)
		return &Strategy{
			Name:       StrategyLocalMixed,
			Retrievers: supported(all, languageID),
		}
	default:
		return &Strategy{Name: StrategyNone}
	}
}

// Dispose releases every configured retriever.
func (f *StrategyFactory) Dispose() {
	if f.jaccard != nil {
		f.jaccard.Dispose()
	}
	for _, r := range f.additional {
		r.Dispose()
	}
}

func supported(retrievers []Retriever, languageID string) []Retriever {
	var out []Retriever
	for _, r := range retrievers {
		if r != nil && r.IsSupportedForLanguageID(languageID) {
			out = append(out, r)
		}
	}
	return out
}
