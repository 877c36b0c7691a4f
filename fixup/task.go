// Package fixup drives AI edit tasks: a task captures an instruction and a
// document range, streams a replacement from the model, reconciles it with
// the live buffer through the diff engine, and applies it atomically.
package fixup

import (
	"context"
	"time"

	"codeassist/editor"
	"codeassist/text"
)

// State is a task's lifecycle state.
type State int

const (
	// StateWorking: the model is generating.
	StateWorking State = iota
	// StateApplying: generation finished, the buffer mutation is in
	// progress (or blocked on an unclean diff).
	StateApplying
	// StateApplied: the buffer holds the edit, awaiting accept or undo.
	StateApplied
	// StateFinished: terminal; accepted or discarded.
	StateFinished
	// StateError: terminal; respins exhausted or a hard failure.
	StateError
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateWorking:
		return "Working"
	case StateApplying:
		return "Applying"
	case StateApplied:
		return "Applied"
	case StateFinished:
		return "Finished"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Task is one in-flight AI edit. Tasks live in the controller's map and are
// only ever mutated under the controller's lock; external callers see
// snapshots.
type Task struct {
	ID          string
	Path        string
	Instruction string
	// SelectionRange tracks the live full-line span the task targets. The
	// observer keeps it shifted across concurrent edits.
	SelectionRange editor.Range
	// Original is the range's text when the task was created (or last
	// re-spun).
	Original string
	// InProgress accumulates streamed model output.
	InProgress string
	// Replacement is the finalized model output.
	Replacement string
	// Diff, once set, is only ever replaced by a newer diff.
	Diff       *text.Diff
	State      State
	SpinCount  int
	Err        string
	InsertMode bool
	Source     string

	createdAt time.Time
	cancel    context.CancelFunc
}

// Snapshot is a read-only copy of a task for UI and external callers.
type Snapshot struct {
	ID             string
	Path           string
	Instruction    string
	SelectionRange editor.Range
	State          State
	SpinCount      int
	Err            string
	InsertMode     bool
	Source         string
}

func (t *Task) snapshot() Snapshot {
	return Snapshot{
		ID:             t.ID,
		Path:           t.Path,
		Instruction:    t.Instruction,
		SelectionRange: t.SelectionRange,
		State:          t.State,
		SpinCount:      t.SpinCount,
		Err:            t.Err,
		InsertMode:     t.InsertMode,
		Source:         t.Source,
	}
}
