package fixup

import (
	"context"
	"time"

	"codeassist/logger"
)

// runLoop consumes host change events and ticks the idle re-diff
// scheduler. It exits when ctx is cancelled or the host closes its
// change channel.
func (c *Controller) runLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.IdleInterval)
	defer ticker.Stop()

	changes := c.host.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case dc, ok := <-changes:
			if !ok {
				return
			}
			c.HandleDocumentChange(dc)
		case <-ticker.C:
			c.DrainDirty()
		}
	}
}

// DrainDirty re-diffs dirtied tasks against the live buffer inside a
// bounded time slice. Tasks that do not fit the slice stay queued for the
// next tick, so a burst of typing never stalls the loop.
func (c *Controller) DrainDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.dirty) == 0 {
		return
	}
	deadline := time.Now().Add(c.config.SliceDeadline)

	for id := range c.dirty {
		if time.Now().After(deadline) {
			logger.Debug("fixup re-diff slice expired with %d tasks pending", len(c.dirty))
			return
		}
		delete(c.dirty, id)
		t := c.tasks[id]
		if t == nil {
			continue
		}
		c.rediffLocked(t)
	}
}

// rediffLocked reconciles a dirtied task with the current buffer. Applying
// is the only state with pending work: retrying the apply recomputes the
// diff against the drifted buffer first. Streaming tasks have no
// replacement yet, so there is nothing to re-diff.
func (c *Controller) rediffLocked(t *Task) {
	if t.State == StateApplying {
		c.applyLocked(t)
	}
}
