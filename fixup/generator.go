package fixup

import (
	"context"
	"strings"
)

// EditRequest is what the controller hands the generator for one attempt.
type EditRequest struct {
	FilePath    string
	LanguageID  string
	Instruction string
	// Selection is the current text of the target range ("" in insert
	// mode).
	Selection string
	// Preceding and Following are context windows around the range.
	Preceding string
	Following string
}

// StreamDelta is one increment of generated output. A closed channel with no
// Err delta means the stream completed normally; context cancellation ends
// the stream without an error delta.
type StreamDelta struct {
	Text string
	Err  error
}

// Generator produces replacement text for an edit instruction as a stream.
type Generator interface {
	GenerateEdit(ctx context.Context, req EditRequest) (<-chan StreamDelta, error)
}

// CleanReplacement normalizes raw model output: markdown code fences are
// stripped and a missing trailing newline is tolerated.
func CleanReplacement(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = ""
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimRight(s, "\n")
	}
	return s
}
