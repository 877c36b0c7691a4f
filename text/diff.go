// Package text implements the diff engine: a pure, line-based three-way
// comparison between the text a fixup task captured, the replacement the
// model produced, and whatever is in the buffer now.
package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"codeassist/editor"
)

// Hunk is one contiguous line-level change relative to an original text:
// the lines [Start, Start+len(Removed)) of the original are replaced by
// Added. len(Removed) == 0 is a pure insertion before line Start.
type Hunk struct {
	Start   int // 0-indexed original line
	Removed []string
	Added   []string
}

func (h Hunk) end() int { return h.Start + len(h.Removed) }

// Diff is the result of Compute. When Clean is false, Edits is nil and the
// controller must not apply anything; it re-spins or leaves the task pending.
type Diff struct {
	// Edits transform the current buffer into the merged text. Line numbers
	// are absolute (anchored at the range start Compute was given).
	Edits []editor.Edit
	// Clean is true when no intended change destructively overlaps a
	// concurrent one.
	Clean bool
	// BufferText is the current text the diff was computed against. The
	// controller compares it to the live buffer to decide when to recompute.
	BufferText string
	// MergedText is the buffer text with the clean edits applied, for
	// display. Empty when Clean is false.
	MergedText string
	// Conflicts holds the intended hunks that collided with concurrent
	// edits, for diagnostics. Empty when Clean is true.
	Conflicts []Hunk
}

// Compute diffs replacement against original, reconciles with the possibly
// drifted current text, and expresses the surviving changes as line edits
// anchored at rangeStart.
//
// A hunk of the intended change survives untouched when no concurrent hunk
// overlaps it; it is dropped (already applied) when the overlapping
// concurrent hunk already contains its outcome; any other overlap marks the
// whole diff unclean. Concurrent edits entirely outside the intended hunks
// only shift positions and keep the diff clean.
//
// Compute is a pure function of its inputs.
func Compute(original, replacement, current string, rangeStart editor.Position) *Diff {
	intended := LineHunks(original, replacement)
	concurrent := LineHunks(original, current)

	d := &Diff{Clean: true, BufferText: current}

	type relEdit struct {
		start, end int
		lines      []string
	}
	var rel []relEdit

	ci := 0
	delta := 0
	for _, ih := range intended {
		// Consume concurrent hunks that end at or before this hunk; they
		// only move it.
		for ci < len(concurrent) && concurrent[ci].end() <= ih.Start && !overlaps(concurrent[ci], ih) {
			delta += len(concurrent[ci].Added) - len(concurrent[ci].Removed)
			ci++
		}

		if ci < len(concurrent) && overlaps(concurrent[ci], ih) {
			if appliedWithin(concurrent[ci], ih) {
				// The buffer already contains this change. The concurrent
				// hunk is not consumed: it may cover further intended hunks,
				// and its line delta is accounted for when a later hunk
				// passes it.
				continue
			}
			d.Clean = false
			d.Conflicts = append(d.Conflicts, ih)
			continue
		}

		start := ih.Start + delta
		rel = append(rel, relEdit{start: start, end: start + len(ih.Removed), lines: ih.Added})
	}

	if !d.Clean {
		return d
	}

	// Merged text: apply the relative edits back-to-front over the current
	// lines.
	merged := splitLines(current)
	for i := len(rel) - 1; i >= 0; i-- {
		e := rel[i]
		tail := append([]string{}, merged[min(e.end, len(merged)):]...)
		merged = append(merged[:min(e.start, len(merged))], append(append([]string{}, e.lines...), tail...)...)
	}
	d.MergedText = strings.Join(merged, "\n")

	for _, e := range rel {
		d.Edits = append(d.Edits, editor.Edit{
			StartLine: rangeStart.Line + e.start,
			EndLine:   rangeStart.Line + e.end,
			Lines:     e.lines,
		})
	}
	return d
}

// overlaps reports a destructive collision between a concurrent hunk ch and
// an intended hunk ih. Two insertions at the same line collide unless
// identical; an insertion strictly inside the other hunk's removed span
// collides; non-empty spans collide when their intervals intersect.
func overlaps(ch, ih Hunk) bool {
	if len(ch.Removed) == 0 && len(ih.Removed) == 0 {
		return ch.Start == ih.Start
	}
	if len(ch.Removed) == 0 {
		return ch.Start > ih.Start && ch.Start < ih.end()
	}
	if len(ih.Removed) == 0 {
		return ih.Start > ch.Start && ih.Start < ch.end()
	}
	return ch.Start < ih.end() && ih.Start < ch.end()
}

// appliedWithin reports that an intended hunk's outcome is already present
// inside an overlapping concurrent hunk. A user edit adjacent to an applied
// change makes the line differ merge both into one concurrent hunk, so exact
// hunk equality is too strict: the intended change counts as applied when
// the concurrent hunk spans it and carries its added lines.
func appliedWithin(ch, ih Hunk) bool {
	if ih.Start < ch.Start || ih.end() > ch.end() {
		return false
	}
	if len(ih.Added) == 0 {
		// Pure deletion: applied when none of the removed lines survive.
		for _, l := range ih.Removed {
			if containsRun(ch.Added, []string{l}) {
				return false
			}
		}
		return true
	}
	return containsRun(ch.Added, ih.Added)
}

// containsRun reports whether needle appears as a contiguous run in
// haystack.
func containsRun(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// LineHunks computes the line-level hunks turning a into b, using a
// character-compressed line diff.
func LineHunks(a, b string) []Hunk {
	if a == b {
		return nil
	}

	dmp := diffmatchpatch.New()
	ca, cb, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var hunks []Hunk
	aPos := 0
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			aPos += len(lines)
			i++
		case diffmatchpatch.DiffDelete:
			h := Hunk{Start: aPos, Removed: lines}
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				h.Added = splitLines(diffs[i+1].Text)
				i++
			}
			hunks = append(hunks, h)
			aPos += len(lines)
			i++
		case diffmatchpatch.DiffInsert:
			hunks = append(hunks, Hunk{Start: aPos, Added: lines})
			i++
		}
	}
	return hunks
}

// splitLines splits text by newline and removes a trailing empty element so
// "a\nb\n" and "a\nb" both yield two lines.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
