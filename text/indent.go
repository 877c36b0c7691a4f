package text

import "strings"

// NormalizeIndent re-indents an inserted block so it lines up with the line
// it is inserted at: the block's common leading whitespace is stripped and
// baseIndent is prefixed to every non-empty line.
func NormalizeIndent(lines []string, baseIndent string) []string {
	common := commonIndent(lines)
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = baseIndent + strings.TrimPrefix(line, common)
	}
	return out
}

// commonIndent returns the longest whitespace prefix shared by all non-empty
// lines.
func commonIndent(lines []string) string {
	common := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := LeadingWhitespace(line)
		if first {
			common = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, common) {
			common = common[:len(common)-1]
		}
	}
	return common
}

// LeadingWhitespace returns the run of spaces and tabs at the start of s.
func LeadingWhitespace(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return s[:i]
		}
	}
	return s
}

// StripTrailingBlank drops whitespace-only lines from the end of the block.
func StripTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}
