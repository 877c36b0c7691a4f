// Package editor defines the host abstraction the core works against:
// documents, positions, line edits with undo-stop control, and document
// change events. Implementations (nvimhost) adapt a concrete editor RPC
// surface to these interfaces.
package editor

import (
	"context"
	"strings"
)

// Position is a location in a document. Line and Character are both
// 0-indexed; Character counts bytes within the line.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span [Start, End) in a document.
type Range struct {
	Start Position
	End   Position
}

// IsEmpty reports whether the range spans no text.
func (r Range) IsEmpty() bool { return r.Start == r.End }

// ComparePositions returns -1, 0 or 1 as a is before, equal to or after b.
func ComparePositions(a, b Position) int {
	if a.Line != b.Line {
		if a.Line < b.Line {
			return -1
		}
		return 1
	}
	if a.Character != b.Character {
		if a.Character < b.Character {
			return -1
		}
		return 1
	}
	return 0
}

// ContentChange describes one replaced span in a document: the range that was
// replaced and the text that replaced it.
type ContentChange struct {
	Range Range
	Text  string
}

// EndPosition returns where the change's inserted text ends.
func (c ContentChange) EndPosition() Position {
	return endOf(c.Range.Start, c.Text)
}

func endOf(start Position, text string) Position {
	n := strings.Count(text, "\n")
	if n == 0 {
		return Position{Line: start.Line, Character: start.Character + len(text)}
	}
	last := text[strings.LastIndexByte(text, '\n')+1:]
	return Position{Line: start.Line + n, Character: len(last)}
}

// ChangeReason distinguishes ordinary edits from undo/redo, which the fixup
// observer treats specially.
type ChangeReason int

const (
	ReasonEdit ChangeReason = iota
	ReasonUndo
	ReasonRedo
)

// DocumentChange is one change event delivered by the host.
type DocumentChange struct {
	Path    string
	Changes []ContentChange
	Reason  ChangeReason
	// Saved is set when the event was triggered by an explicit save rather
	// than a text change.
	Saved bool
}

// EditOptions controls undo grouping for an edit transaction. An edit issued
// with UndoStopBefore=false merges into the previous undo step.
type EditOptions struct {
	UndoStopBefore bool
	UndoStopAfter  bool
}

// Edit replaces the lines [StartLine, EndLine) with Lines. StartLine ==
// EndLine inserts before StartLine. Lines are 0-indexed.
type Edit struct {
	StartLine int
	EndLine   int
	Lines     []string
}

// Document is a live editor buffer.
type Document interface {
	Path() string
	LanguageID() string
	// Lines returns the current buffer content. Callers must not mutate the
	// returned slice.
	Lines() []string
	// GetText returns the text covered by r, clamped to the document.
	GetText(r Range) string
	// ApplyEdits applies all edits as one atomic transaction, or none.
	ApplyEdits(edits []Edit, opts EditOptions) error
	// FormatLines runs the host's formatter over [startLine, endLine).
	// A formatting failure is not fatal to the caller.
	FormatLines(startLine, endLine int) error
}

// Host is the editor surface the controller consumes.
type Host interface {
	// Document resolves a live document by path.
	Document(path string) (Document, error)
	// Changes delivers document change events until the host shuts down.
	Changes() <-chan DocumentChange
}

// Location is a resolved symbol definition site.
type Location struct {
	Path  string
	Range Range
}

// SymbolProvider answers "go to definition" style queries. Backed by the
// host's LSP client; network-free implementations are used in tests.
type SymbolProvider interface {
	DefinitionsAt(ctx context.Context, path string, pos Position) ([]Location, error)
}

// GetLinesText extracts the text of r from lines. Out-of-bounds positions
// are clamped.
func GetLinesText(lines []string, r Range) string {
	if ComparePositions(r.Start, r.End) > 0 {
		r.Start, r.End = r.End, r.Start
	}
	start := clampPosition(lines, r.Start)
	end := clampPosition(lines, r.End)
	if start.Line == end.Line {
		if start.Line >= len(lines) {
			return ""
		}
		return lines[start.Line][start.Character:end.Character]
	}
	var b strings.Builder
	b.WriteString(lines[start.Line][start.Character:])
	for l := start.Line + 1; l < end.Line; l++ {
		b.WriteByte('\n')
		b.WriteString(lines[l])
	}
	b.WriteByte('\n')
	b.WriteString(lines[end.Line][:end.Character])
	return b.String()
}

func clampPosition(lines []string, p Position) Position {
	if p.Line < 0 {
		return Position{}
	}
	if p.Line >= len(lines) {
		if len(lines) == 0 {
			return Position{}
		}
		return Position{Line: len(lines) - 1, Character: len(lines[len(lines)-1])}
	}
	if p.Character < 0 {
		p.Character = 0
	}
	if p.Character > len(lines[p.Line]) {
		p.Character = len(lines[p.Line])
	}
	return p
}
