package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIndentRebasesBlock(t *testing.T) {
	lines := []string{"    if x {", "        y()", "    }"}

	got := NormalizeIndent(lines, "\t")

	assert.Equal(t, []string{"\tif x {", "\t    y()", "\t}"}, got)
}

func TestNormalizeIndentSkipsBlankLines(t *testing.T) {
	lines := []string{"  a", "   ", "  b"}

	got := NormalizeIndent(lines, "")

	assert.Equal(t, []string{"a", "", "b"}, got)
}

func TestNormalizeIndentMixedDepths(t *testing.T) {
	// Common prefix is two spaces; deeper lines keep their relative depth.
	lines := []string{"  a", "    b"}

	got := NormalizeIndent(lines, "    ")

	assert.Equal(t, []string{"    a", "      b"}, got)
}

func TestLeadingWhitespace(t *testing.T) {
	assert.Equal(t, "\t  ", LeadingWhitespace("\t  x"))
	assert.Equal(t, "", LeadingWhitespace("x"))
	assert.Equal(t, "   ", LeadingWhitespace("   "))
}

func TestStripTrailingBlank(t *testing.T) {
	assert.Equal(t, []string{"a", "", "b"}, StripTrailingBlank([]string{"a", "", "b", "", "  "}))
	assert.Empty(t, StripTrailingBlank([]string{"", " "}))
}
