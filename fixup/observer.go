package fixup

import (
	"codeassist/editor"
	"codeassist/logger"
)

// HandleDocumentChange folds an external buffer change into every task
// tracking that document: tracked ranges are shifted, touched applied tasks
// are implicitly accepted, and everything else touched is queued for an
// idle re-diff.
func (c *Controller) HandleDocumentChange(dc editor.DocumentChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tasks {
		if t.Path != dc.Path {
			continue
		}

		// Saving a file with an applied fixup is an implicit accept.
		if dc.Saved && t.State == StateApplied {
			c.finishLocked(t)
			continue
		}

		// An undo while streaming means the user is backing out of the
		// request itself.
		if dc.Reason == editor.ReasonUndo && t.State == StateWorking && t.InProgress != "" {
			logger.Debug("fixup task %s cancelled by undo", t.ID)
			c.finishLocked(t)
			continue
		}

		adjusted, intersects := editor.AdjustRangeAll(t.SelectionRange, dc.Changes)
		t.SelectionRange = adjusted
		if !intersects {
			continue
		}

		switch t.State {
		case StateApplied:
			// The user is editing on top of the result: treat as accepted.
			c.finishLocked(t)
		default:
			c.markDirtyLocked(t)
		}
	}
}

// markDirtyLocked queues a task for the idle scheduler's next slice.
func (c *Controller) markDirtyLocked(t *Task) {
	if _, ok := c.dirty[t.ID]; ok {
		return
	}
	c.dirty[t.ID] = struct{}{}
	logger.Debug("fixup task %s dirtied", t.ID)
}
