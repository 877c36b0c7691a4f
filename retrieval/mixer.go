package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"codeassist/logger"
	"codeassist/types"
)

// rrfK is the reciprocal rank fusion constant: an item at rank r contributes
// 1/(r+rrfK) to its file's fused score. The standard value keeps items that
// appear near the top of several lists ahead of items that top a single one.
const rrfK = 60

// MixerConfig configures a Mixer.
type MixerConfig struct {
	// MaxChars is the default character budget when the request doesn't
	// carry one.
	MaxChars int
}

// Mixer runs a strategy's retrievers in parallel and fuses their output.
// A Mixer holds no per-request state and is safe for concurrent use;
// retrievers may cache internally.
type Mixer struct {
	config MixerConfig
}

// NewMixer creates a Mixer.
func NewMixer(config MixerConfig) *Mixer {
	return &Mixer{config: config}
}

type retrieverResult struct {
	snippets []types.ContextSnippet
	duration time.Duration
	err      error
}

// Mix invokes every retriever of the strategy concurrently, waits for all of
// them to settle, and fuses the results by reciprocal rank with dedup by
// file and a take-while-fits character budget.
//
// A strategy with no retrievers yields an empty context with strategy name
// "none" and zero duration, never an error.
func (m *Mixer) Mix(ctx context.Context, strategy *Strategy, opts Options) *types.MixedContext {
	if strategy == nil || len(strategy.Retrievers) == 0 {
		return &types.MixedContext{
			Summary: types.MixSummary{
				Strategy:   StrategyNone,
				Retrievers: map[string]types.RetrieverStats{},
			},
		}
	}

	if opts.MaxChars <= 0 {
		opts.MaxChars = m.config.MaxChars
	}

	start := time.Now()
	results := make([]retrieverResult, len(strategy.Retrievers))

	var wg sync.WaitGroup
	for i, r := range strategy.Retrievers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, opts.Timeout())
			defer cancel()

			t0 := time.Now()
			snippets, err := r.Retrieve(rctx, opts)
			results[i] = retrieverResult{
				snippets: snippets,
				duration: time.Since(t0),
				err:      err,
			}
		}()
	}
	wg.Wait()

	for i, res := range results {
		if res.err != nil {
			// Isolation boundary: a failing retriever contributes nothing.
			logger.Warn("retriever %s failed: %v", strategy.Retrievers[i].Identifier(), res.err)
			results[i].snippets = nil
		}
	}

	mixed := m.fuse(strategy, opts.MaxChars, results)
	mixed.Summary.Strategy = strategy.Name
	mixed.Summary.Duration = time.Since(start)

	logger.Debug("mixed context: strategy=%s snippets=%d chars=%d in %v",
		mixed.Summary.Strategy, len(mixed.Snippets), mixed.Summary.TotalChars, mixed.Summary.Duration)
	return mixed
}

// fusedCandidate is one distinct file in the fused ranking. The snippet kept
// for a file is its first occurrence in the earliest retriever that returned
// it.
type fusedCandidate struct {
	snippet      types.ContextSnippet
	score        float64
	retrieverIdx int
	rank         int
}

func (m *Mixer) fuse(strategy *Strategy, maxChars int, results []retrieverResult) *types.MixedContext {
	stats := make(map[string]types.RetrieverStats, len(strategy.Retrievers))
	for i, r := range strategy.Retrievers {
		stats[r.Identifier()] = types.RetrieverStats{
			Retrieved: len(results[i].snippets),
			Duration:  results[i].duration,
		}
	}

	byFile := make(map[string]*fusedCandidate)
	var order []*fusedCandidate
	for i, res := range results {
		seenInRetriever := make(map[string]bool, len(res.snippets))
		for rank, s := range res.snippets {
			if seenInRetriever[s.FilePath] {
				// Only a retriever's best hit per file scores.
				continue
			}
			seenInRetriever[s.FilePath] = true

			c, ok := byFile[s.FilePath]
			if !ok {
				c = &fusedCandidate{snippet: s, retrieverIdx: i, rank: rank}
				byFile[s.FilePath] = c
				order = append(order, c)
			}
			c.score += 1.0 / float64(rank+rrfK)
		}
	}

	// Sort by fused score descending; ties break by original retriever
	// order, then by rank within that retriever. With a single active
	// retriever this reduces to its native order.
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].score != order[b].score {
			return order[a].score > order[b].score
		}
		if order[a].retrieverIdx != order[b].retrieverIdx {
			return order[a].retrieverIdx < order[b].retrieverIdx
		}
		return order[a].rank < order[b].rank
	})

	mixed := &types.MixedContext{}
	total := 0
	for _, c := range order {
		if total+c.snippet.Chars() > maxChars {
			// Take while fits: stop at the first overflow rather than
			// skipping ahead to smaller items.
			break
		}
		total += c.snippet.Chars()

		pos := len(mixed.Snippets)
		mixed.Snippets = append(mixed.Snippets, c.snippet)

		id := strategy.Retrievers[c.retrieverIdx].Identifier()
		st := stats[id]
		st.Kept++
		if pos < 64 {
			st.PositionBitmap |= 1 << uint(pos)
		}
		stats[id] = st
	}

	mixed.Summary.TotalChars = total
	mixed.Summary.Retrievers = stats
	return mixed
}
