// Package jaccard implements the local lexical retriever: bag-of-words
// jaccard similarity between the text around the cursor and windows of
// recently seen buffers.
package jaccard

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"codeassist/retrieval"
	"codeassist/types"
	"codeassist/utils"
)

const (
	// windowSize is the number of lines per candidate window.
	windowSize = 10
	// windowStride is the slide step between candidate windows.
	windowStride = 5
	// queryLines is how many lines around the cursor form the query set.
	queryLines = 20
	// maxResults caps the retriever's own result list; the mixer truncates
	// further by budget.
	maxResults = 10
	// maxTrackedFiles bounds the corpus of recently seen buffers.
	maxTrackedFiles = 20
)

// Retriever is the local jaccard-similarity retriever. It is fed buffer
// snapshots through Observe and needs no I/O at retrieval time.
type Retriever struct {
	mu    sync.Mutex
	files map[string][]string // path -> last seen lines
	order []string            // LRU order, oldest first
}

var _ retrieval.Retriever = (*Retriever)(nil)

// New creates an empty jaccard retriever.
func New() *Retriever {
	return &Retriever{files: make(map[string][]string)}
}

// Identifier implements retrieval.Retriever.
func (r *Retriever) Identifier() string { return "jaccard-similarity" }

// IsSupportedForLanguageID implements retrieval.Retriever. Lexical matching
// works on any language.
func (r *Retriever) IsSupportedForLanguageID(string) bool { return true }

// Dispose implements retrieval.Retriever.
func (r *Retriever) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = make(map[string][]string)
	r.order = nil
}

// Observe records the current content of a buffer so later requests can
// match against it. Called by the host adapter on visible/edited buffers.
func (r *Retriever) Observe(path string, lines []string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[path]; ok {
		for i, p := range r.order {
			if p == path {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.files[path] = append([]string{}, lines...)
	r.order = append(r.order, path)

	for len(r.order) > maxTrackedFiles {
		delete(r.files, r.order[0])
		r.order = r.order[1:]
	}
}

type scoredWindow struct {
	path      string
	startLine int // 0-indexed
	lines     []string
	score     float64
}

// Retrieve implements retrieval.Retriever. It slides a window over every
// tracked buffer except the request's own file and ranks windows by jaccard
// similarity against the lines around the cursor.
func (r *Retriever) Retrieve(ctx context.Context, opts retrieval.Options) ([]types.ContextSnippet, error) {
	query := tokenSet(append(utils.LastLines(opts.Prefix, queryLines),
		firstLines(opts.Suffix, queryLines/2)...))
	if len(query) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	corpus := make(map[string][]string, len(r.files))
	for path, lines := range r.files {
		if path == opts.FilePath {
			continue
		}
		corpus[path] = lines
	}
	r.mu.Unlock()

	var windows []scoredWindow
	for path, lines := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for start := 0; start < len(lines); start += windowStride {
			end := start + windowSize
			if end > len(lines) {
				end = len(lines)
			}
			w := lines[start:end]
			score := jaccard(query, tokenSet(w))
			if score > 0 {
				windows = append(windows, scoredWindow{path: path, startLine: start, lines: w, score: score})
			}
			if end == len(lines) {
				break
			}
		}
	}

	sort.SliceStable(windows, func(a, b int) bool { return windows[a].score > windows[b].score })
	if len(windows) > maxResults {
		windows = windows[:maxResults]
	}

	snippets := make([]types.ContextSnippet, 0, len(windows))
	for _, w := range windows {
		snippets = append(snippets, types.ContextSnippet{
			FilePath:  w.path,
			Content:   strings.Join(w.lines, "\n"),
			StartLine: w.startLine + 1,
			EndLine:   w.startLine + len(w.lines),
			Score:     w.score,
		})
	}
	return snippets, nil
}

// jaccard computes |a ∩ b| / |a ∪ b| over token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// tokenSet lowercases and splits lines into identifier-ish tokens.
func tokenSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range lines {
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		}) {
			if len(tok) < 2 {
				continue
			}
			set[strings.ToLower(tok)] = struct{}{}
		}
	}
	return set
}

func firstLines(s string, n int) []string {
	if s == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
