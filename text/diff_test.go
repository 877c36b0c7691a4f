package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeassist/editor"
)

func joinN(lines ...string) string { return strings.Join(lines, "\n") + "\n" }

func applyEdits(current string, edits []editor.Edit) string {
	lines := splitLines(current)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		var out []string
		out = append(out, lines[:e.StartLine]...)
		out = append(out, e.Lines...)
		out = append(out, lines[e.EndLine:]...)
		lines = out
	}
	return strings.Join(lines, "\n")
}

func TestComputeUnchangedBuffer(t *testing.T) {
	original := joinN("a", "b", "c")
	replacement := joinN("a", "B", "c")

	d := Compute(original, replacement, original, editor.Position{})

	require.True(t, d.Clean)
	require.Len(t, d.Edits, 1)
	assert.Equal(t, editor.Edit{StartLine: 1, EndLine: 2, Lines: []string{"B"}}, d.Edits[0])
	assert.Equal(t, joinN("a", "B", "c"), d.MergedText+"\n")
}

func TestComputeIdenticalTextsYieldsNoEdits(t *testing.T) {
	original := joinN("a", "b")

	d := Compute(original, original, original, editor.Position{})

	assert.True(t, d.Clean)
	assert.Empty(t, d.Edits)
}

func TestComputeConcurrentEditAboveShiftsEdits(t *testing.T) {
	original := joinN("a", "b", "c", "d")
	replacement := joinN("a", "b", "C", "d")
	// Someone inserted two lines at the top since the snapshot.
	current := joinN("x", "y", "a", "b", "c", "d")

	d := Compute(original, replacement, current, editor.Position{})

	require.True(t, d.Clean)
	require.Len(t, d.Edits, 1)
	assert.Equal(t, 4, d.Edits[0].StartLine)
	assert.Equal(t, 5, d.Edits[0].EndLine)
	assert.Equal(t, joinN("x", "y", "a", "b", "C", "d"), applyEdits(current, d.Edits)+"\n")
}

func TestComputeConcurrentEditBelowKeepsEdits(t *testing.T) {
	original := joinN("a", "b", "c", "d")
	replacement := joinN("A", "b", "c", "d")
	current := joinN("a", "b", "c", "d", "tail")

	d := Compute(original, replacement, current, editor.Position{})

	require.True(t, d.Clean)
	require.Len(t, d.Edits, 1)
	assert.Equal(t, 0, d.Edits[0].StartLine)
	assert.Equal(t, joinN("A", "b", "c", "d", "tail"), applyEdits(current, d.Edits)+"\n")
}

func TestComputeOverlappingEditIsUnclean(t *testing.T) {
	original := joinN("a", "b", "c")
	replacement := joinN("a", "B", "c")
	// The same line was edited differently in the buffer.
	current := joinN("a", "bbb", "c")

	d := Compute(original, replacement, current, editor.Position{})

	assert.False(t, d.Clean)
	assert.Empty(t, d.Edits)
	assert.NotEmpty(t, d.Conflicts)
}

func TestComputeAlreadyAppliedIsIdempotent(t *testing.T) {
	original := joinN("a", "b", "c")
	replacement := joinN("a", "B", "c")

	first := Compute(original, replacement, original, editor.Position{})
	require.True(t, first.Clean)
	merged := first.MergedText

	// Re-diffing against the already-merged buffer must be clean and
	// produce no further edits.
	second := Compute(original, replacement, merged, editor.Position{})

	assert.True(t, second.Clean)
	assert.Empty(t, second.Edits)
	assert.Equal(t, merged, second.MergedText)
}

func TestComputeAppliedWithAdjacentUserEditStaysClean(t *testing.T) {
	original := joinN("a", "b", "c", "d", "e")
	replacement := joinN("a", "b", "C", "d", "e")

	first := Compute(original, replacement, original, editor.Position{})
	require.True(t, first.Clean)

	// After the apply, the user edits the line directly above the applied
	// change. The line differ merges both into one concurrent hunk, which
	// must still read as "already applied", not as a conflict.
	merged := strings.Replace(first.MergedText, "b", "B", 1)
	second := Compute(original, replacement, merged, editor.Position{})

	assert.True(t, second.Clean)
	assert.Empty(t, second.Edits)
	assert.Equal(t, merged, second.MergedText)
}

func TestComputeAppliedWithAdjacentEditBelowStaysClean(t *testing.T) {
	original := joinN("a", "b", "c", "d", "e")
	replacement := joinN("a", "b", "C", "d", "e")

	// Applied change on line 2 plus a user edit on the line right below it.
	current := joinN("a", "b", "C", "D2", "e")
	d := Compute(original, replacement, current, editor.Position{})

	assert.True(t, d.Clean)
	assert.Empty(t, d.Edits)
}

func TestComputePartiallyAppliedPlusConflict(t *testing.T) {
	original := joinN("a", "b", "c", "d", "e")
	replacement := joinN("a", "B", "c", "D", "e")
	// The first intended hunk is already in the buffer, the second line was
	// edited to something else.
	current := joinN("a", "B", "c", "XXX", "e")

	d := Compute(original, replacement, current, editor.Position{})

	assert.False(t, d.Clean)
	require.Len(t, d.Conflicts, 1)
	assert.Equal(t, []string{"D"}, d.Conflicts[0].Added)
}

func TestComputeAnchorsAtRangeStart(t *testing.T) {
	original := joinN("a", "b")
	replacement := joinN("a", "B")

	d := Compute(original, replacement, original, editor.Position{Line: 10})

	require.True(t, d.Clean)
	require.Len(t, d.Edits, 1)
	assert.Equal(t, 11, d.Edits[0].StartLine)
	assert.Equal(t, 12, d.Edits[0].EndLine)
}

func TestComputeInsertionHunk(t *testing.T) {
	original := joinN("a", "b")
	replacement := joinN("a", "mid", "b")

	d := Compute(original, replacement, original, editor.Position{})

	require.True(t, d.Clean)
	require.Len(t, d.Edits, 1)
	assert.Equal(t, d.Edits[0].StartLine, d.Edits[0].EndLine)
	assert.Equal(t, []string{"mid"}, d.Edits[0].Lines)
}

func TestComputeBufferTextRecorded(t *testing.T) {
	current := joinN("a", "x", "c")

	d := Compute(joinN("a", "b", "c"), joinN("a", "B", "c"), current, editor.Position{})

	assert.Equal(t, current, d.BufferText)
}

func TestLineHunksDeletion(t *testing.T) {
	hunks := LineHunks(joinN("a", "b", "c"), joinN("a", "c"))

	require.Len(t, hunks, 1)
	assert.Equal(t, 1, hunks[0].Start)
	assert.Equal(t, []string{"b"}, hunks[0].Removed)
	assert.Empty(t, hunks[0].Added)
}

func TestLineHunksModification(t *testing.T) {
	hunks := LineHunks(joinN("a", "b", "c"), joinN("a", "B", "c"))

	require.Len(t, hunks, 1)
	assert.Equal(t, []string{"b"}, hunks[0].Removed)
	assert.Equal(t, []string{"B"}, hunks[0].Added)
}

func TestLineHunksEqualTexts(t *testing.T) {
	assert.Nil(t, LineHunks("same\n", "same\n"))
}
