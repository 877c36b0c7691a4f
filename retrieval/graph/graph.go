// Package graph implements the symbol-definition retriever: identifiers
// near the cursor are resolved through the editor host's definition
// provider, and the code around each definition site becomes a snippet.
package graph

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	"codeassist/editor"
	"codeassist/retrieval"
	"codeassist/types"
	"codeassist/utils"
)

const (
	// maxIdentifiers bounds how many identifiers near the cursor are
	// resolved per request.
	maxIdentifiers = 8
	// maxConcurrentLookups bounds parallel definition queries against the
	// host.
	maxConcurrentLookups = 4
	// contextLines is how many lines around a definition site are captured.
	contextLines = 10
)

// FileReader loads a file's lines. Defaults to the filesystem; tests inject
// an in-memory reader.
type FileReader func(path string) ([]string, error)

// Config configures the graph retriever.
type Config struct {
	// Languages restricts the retriever to languages the host has a working
	// definition provider for.
	Languages []string
}

// Retriever resolves symbol definitions reachable from the text around the
// cursor.
type Retriever struct {
	symbols editor.SymbolProvider
	read    FileReader
	config  Config
}

var _ retrieval.Retriever = (*Retriever)(nil)

// New creates a graph retriever. read may be nil to use the filesystem.
func New(symbols editor.SymbolProvider, read FileReader, config Config) *Retriever {
	if read == nil {
		read = readFileLines
	}
	return &Retriever{symbols: symbols, read: read, config: config}
}

// Identifier implements retrieval.Retriever.
func (r *Retriever) Identifier() string { return "graph" }

// IsSupportedForLanguageID implements retrieval.Retriever.
func (r *Retriever) IsSupportedForLanguageID(languageID string) bool {
	if len(r.config.Languages) == 0 {
		return true
	}
	for _, l := range r.config.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}

// Dispose implements retrieval.Retriever.
func (r *Retriever) Dispose() {}

// Retrieve implements retrieval.Retriever. Lookup failures for individual
// identifiers are dropped silently; the request only fails on context
// cancellation.
func (r *Retriever) Retrieve(ctx context.Context, opts retrieval.Options) ([]types.ContextSnippet, error) {
	idents := identifiersNearCursor(opts.Prefix, opts.Suffix)
	if len(idents) == 0 {
		return nil, nil
	}

	type hit struct {
		order   int
		snippet types.ContextSnippet
	}

	var mu sync.Mutex
	var hits []hit

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for order, ident := range idents {
		pos, ok := positionOf(opts, ident)
		if !ok {
			continue
		}
		g.Go(func() error {
			locs, err := r.symbols.DefinitionsAt(gctx, opts.FilePath, pos)
			if err != nil || len(locs) == 0 {
				return nil
			}
			loc := locs[0]
			if loc.Path == opts.FilePath {
				// Definitions in the current file are already in the prompt
				// window.
				return nil
			}
			snippet, ok := r.snippetAt(loc)
			if !ok {
				return nil
			}
			mu.Lock()
			hits = append(hits, hit{order: order, snippet: snippet})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Rank by identifier proximity to the cursor (the order identifiers
	// were extracted in).
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].order < hits[b].order })

	snippets := make([]types.ContextSnippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, h.snippet)
	}
	return snippets, nil
}

// snippetAt reads the lines around a definition site.
func (r *Retriever) snippetAt(loc editor.Location) (types.ContextSnippet, bool) {
	lines, err := r.read(loc.Path)
	if err != nil || len(lines) == 0 {
		return types.ContextSnippet{}, false
	}
	start := loc.Range.Start.Line
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		start = len(lines) - 1
	}
	end := start + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	return types.ContextSnippet{
		FilePath:  loc.Path,
		Content:   strings.Join(lines[start:end], "\n"),
		StartLine: start + 1,
		EndLine:   end,
	}, true
}

// identifiersNearCursor extracts distinct identifiers from the last prefix
// lines and the first suffix line, closest to the cursor first.
func identifiersNearCursor(prefix, suffix string) []string {
	lines := utils.LastLines(prefix, 5)
	// Reverse so the line nearest the cursor is scanned first.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	if idx := strings.IndexByte(suffix, '\n'); idx >= 0 {
		lines = append(lines, suffix[:idx])
	} else if suffix != "" {
		lines = append(lines, suffix)
	}

	seen := make(map[string]bool)
	var idents []string
	for _, line := range lines {
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		}) {
			if len(tok) < 3 || seen[tok] || isKeyword(tok) || startsWithDigit(tok) {
				continue
			}
			seen[tok] = true
			idents = append(idents, tok)
			if len(idents) >= maxIdentifiers {
				return idents
			}
		}
	}
	return idents
}

// positionOf locates an identifier's occurrence nearest the cursor so the
// definition provider can be queried at a concrete position.
func positionOf(opts retrieval.Options, ident string) (editor.Position, bool) {
	lines := strings.Split(opts.Prefix, "\n")
	base := opts.Position.Line - (len(lines) - 1)
	for i := len(lines) - 1; i >= 0; i-- {
		if col := strings.LastIndex(lines[i], ident); col >= 0 {
			return editor.Position{Line: base + i, Character: col}, true
		}
	}
	if idx := strings.IndexByte(opts.Suffix, '\n'); idx >= 0 {
		if col := strings.Index(opts.Suffix[:idx], ident); col >= 0 {
			return editor.Position{Line: opts.Position.Line, Character: opts.Position.Character + col}, true
		}
	}
	return editor.Position{}, false
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

// isKeyword filters tokens that are never useful definition queries.
var keywords = map[string]bool{
	"func": true, "return": true, "const": true, "var": true, "type": true,
	"import": true, "package": true, "for": true, "range": true, "if": true,
	"else": true, "switch": true, "case": true, "default": true, "struct": true,
	"interface": true, "map": true, "chan": true, "defer": true, "go": true,
	"function": true, "let": true, "class": true, "def": true, "self": true,
	"this": true, "new": true, "nil": true, "null": true, "true": true,
	"false": true, "string": true, "int": true, "bool": true, "float": true,
}

func isKeyword(s string) bool { return keywords[strings.ToLower(s)] }

func readFileLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}
