package utils

import "strings"

// Token estimation constants
const (
	AvgCharsPerToken = 2 // Conservative estimate for mixed content (code + JSON)
)

// EstimateCharsFromTokens estimates the number of characters for a given token count
func EstimateCharsFromTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// PrefixSuffix extracts the text before and after the cursor, bounded by a
// character budget split evenly across the two windows. cursorRow is
// 0-indexed into lines, cursorCol is a byte offset into the cursor line.
func PrefixSuffix(lines []string, cursorRow, cursorCol, maxChars int) (prefix, suffix string) {
	if len(lines) == 0 {
		return "", ""
	}
	if cursorRow < 0 {
		cursorRow = 0
	}
	if cursorRow >= len(lines) {
		cursorRow = len(lines) - 1
	}
	line := lines[cursorRow]
	if cursorCol < 0 {
		cursorCol = 0
	}
	if cursorCol > len(line) {
		cursorCol = len(line)
	}

	var pre strings.Builder
	for _, l := range lines[:cursorRow] {
		pre.WriteString(l)
		pre.WriteByte('\n')
	}
	pre.WriteString(line[:cursorCol])

	var suf strings.Builder
	suf.WriteString(line[cursorCol:])
	for _, l := range lines[cursorRow+1:] {
		suf.WriteByte('\n')
		suf.WriteString(l)
	}

	prefix = pre.String()
	suffix = suf.String()
	if maxChars <= 0 {
		return prefix, suffix
	}

	// Balanced split: half the budget before the cursor, half after. Unused
	// budget on one side is handed to the other.
	half := maxChars / 2
	preBudget, sufBudget := half, maxChars-half
	if len(prefix) < preBudget {
		sufBudget += preBudget - len(prefix)
	} else if len(suffix) < sufBudget {
		preBudget += sufBudget - len(suffix)
	}
	if len(prefix) > preBudget {
		prefix = prefix[len(prefix)-preBudget:]
	}
	if len(suffix) > sufBudget {
		suffix = suffix[:sufBudget]
	}
	return prefix, suffix
}

// LastLines returns up to n trailing lines of s.
func LastLines(s string, n int) []string {
	if s == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
