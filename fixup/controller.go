package fixup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeassist/editor"
	"codeassist/logger"
	"codeassist/text"
)

// ControllerConfig tunes the fixup controller.
type ControllerConfig struct {
	// MaxRespins bounds how many times an unclean diff re-requests
	// generation before the task errors out.
	MaxRespins int
	// SliceDeadline is the wall-clock budget for one idle re-diff slice.
	SliceDeadline time.Duration
	// IdleInterval is how often the idle scheduler drains dirtied tasks.
	IdleInterval time.Duration
	// ContextLines is how many lines around the target range are sent to
	// the generator.
	ContextLines int
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.MaxRespins <= 0 {
		c.MaxRespins = 5
	}
	if c.SliceDeadline <= 0 {
		c.SliceDeadline = 500 * time.Millisecond
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 150 * time.Millisecond
	}
	if c.ContextLines <= 0 {
		c.ContextLines = 20
	}
	return c
}

// Controller owns the task collection and is the only component that
// mutates the buffer. Tasks are keyed by opaque ID; the observer and UI
// never hold direct task references.
type Controller struct {
	mu     sync.Mutex
	host   editor.Host
	gen    Generator
	config ControllerConfig

	tasks map[string]*Task
	dirty map[string]struct{}

	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once
}

// NewController creates a controller over an editor host and a generator.
func NewController(host editor.Host, gen Generator, config ControllerConfig) *Controller {
	return &Controller{
		host:   host,
		gen:    gen,
		config: config.withDefaults(),
		tasks:  make(map[string]*Task),
		dirty:  make(map[string]struct{}),
	}
}

// Start runs the event loop: host change events plus the idle re-diff
// scheduler.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.mainCtx, c.mainCancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.runLoop(c.mainCtx)
	logger.Info("fixup controller started")
}

// Stop cancels in-flight streams and shuts the loop down.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopped = true
		if c.mainCancel != nil {
			c.mainCancel()
		}
		for _, t := range c.tasks {
			if t.cancel != nil {
				t.cancel()
			}
		}
		logger.Info("fixup controller stopped")
	})
}

// CreateTask starts a new fixup: it snapshots the target range's text,
// begins streaming a replacement, and returns the task handle immediately.
func (c *Controller) CreateTask(path, instruction string, sel editor.Range, insertMode bool, source string) (Snapshot, error) {
	doc, err := c.host.Document(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fixup: resolve document: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return Snapshot{}, fmt.Errorf("fixup: controller stopped")
	}

	lineRange := fullLineRange(sel, insertMode)
	t := &Task{
		ID:             uuid.NewString(),
		Path:           path,
		Instruction:    instruction,
		SelectionRange: lineRange,
		Original:       doc.GetText(lineRange),
		State:          StateWorking,
		InsertMode:     insertMode,
		Source:         source,
		createdAt:      time.Now(),
	}
	c.tasks[t.ID] = t

	c.startGenerationLocked(t, doc)
	logger.Debug("fixup task %s created on %s [%d,%d)", t.ID, path,
		lineRange.Start.Line, lineRange.End.Line)
	return t.snapshot(), nil
}

// fullLineRange widens a selection to whole lines. An empty selection stays
// empty (insert mode target).
func fullLineRange(sel editor.Range, insertMode bool) editor.Range {
	if insertMode || sel.IsEmpty() {
		p := editor.Position{Line: sel.Start.Line}
		return editor.Range{Start: p, End: p}
	}
	end := sel.End.Line
	if sel.End.Character > 0 {
		end++
	}
	if end <= sel.Start.Line {
		end = sel.Start.Line + 1
	}
	return editor.Range{
		Start: editor.Position{Line: sel.Start.Line},
		End:   editor.Position{Line: end},
	}
}

func (c *Controller) startGenerationLocked(t *Task, doc editor.Document) {
	base := context.Background()
	if c.mainCtx != nil {
		base = c.mainCtx
	}
	ctx, cancel := context.WithCancel(base)
	t.cancel = cancel
	t.InProgress = ""

	req := EditRequest{
		FilePath:    t.Path,
		Instruction: t.Instruction,
		Selection:   t.Original,
	}
	if doc != nil {
		req.LanguageID = doc.LanguageID()
		req.Preceding, req.Following = c.surroundingContext(doc, t.SelectionRange)
	}

	go c.runGeneration(ctx, t.ID, req)
}

func (c *Controller) surroundingContext(doc editor.Document, r editor.Range) (preceding, following string) {
	lines := doc.Lines()
	n := c.config.ContextLines

	start := r.Start.Line - n
	if start < 0 {
		start = 0
	}
	if r.Start.Line > 0 && start < r.Start.Line && r.Start.Line <= len(lines) {
		preceding = strings.Join(lines[start:r.Start.Line], "\n")
	}

	end := r.End.Line + n
	if end > len(lines) {
		end = len(lines)
	}
	if r.End.Line < end {
		following = strings.Join(lines[r.End.Line:end], "\n")
	}
	return preceding, following
}

func (c *Controller) runGeneration(ctx context.Context, id string, req EditRequest) {
	ch, err := c.gen.GenerateEdit(ctx, req)
	if err != nil {
		c.onStreamError(id, err)
		return
	}
	for delta := range ch {
		if delta.Err != nil {
			c.onStreamError(id, delta.Err)
			return
		}
		c.onStreamChunk(id, delta.Text)
	}
	if ctx.Err() != nil {
		// Aborted stream: not an error. The task was reset or removed by
		// whoever cancelled it.
		return
	}
	c.onStreamDone(id)
}

func (c *Controller) onStreamChunk(id, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil || t.State != StateWorking {
		return
	}
	t.InProgress += chunk
}

func (c *Controller) onStreamDone(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil || t.State != StateWorking {
		return
	}
	t.Replacement = CleanReplacement(t.InProgress)
	t.State = StateApplying
	c.applyLocked(t)
}

func (c *Controller) onStreamError(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return
	}
	logger.Error("fixup task %s stream failed: %v", id, err)
	t.State = StateError
	t.Err = err.Error()
}

// applyLocked is the apply algorithm: lazily recompute the diff against the
// live buffer, re-spin on an unclean diff, otherwise mutate the buffer as
// one undo transaction followed by a merged formatting pass.
func (c *Controller) applyLocked(t *Task) {
	doc, err := c.host.Document(t.Path)
	if err != nil {
		t.Err = fmt.Sprintf("resolve document: %v", err)
		logger.Warn("fixup task %s: %s", t.ID, t.Err)
		return
	}

	current := doc.GetText(t.SelectionRange)
	if t.Diff == nil || t.Diff.BufferText != current {
		t.Diff = text.Compute(t.Original, t.Replacement, current, t.SelectionRange.Start)
	}
	if !t.Diff.Clean {
		c.respinLocked(t, doc)
		return
	}

	edits := t.Diff.Edits
	if t.InsertMode {
		edits = c.normalizeInsertEdits(doc, t, edits)
	}

	if len(edits) > 0 {
		// Undo stop before, none after: the formatting pass below merges
		// into the same user-undo step.
		if err := doc.ApplyEdits(edits, editor.EditOptions{UndoStopBefore: true, UndoStopAfter: false}); err != nil {
			t.Err = fmt.Sprintf("edit rejected: %v", err)
			logger.Warn("fixup task %s: %s", t.ID, t.Err)
			return
		}

		c.adjustTasksLocked(t.Path, edits)

		start, end := editedSpan(edits)
		if err := doc.FormatLines(start, end); err != nil {
			// A failed format pass is not fatal to the edit.
			logger.Warn("fixup task %s: format pass failed: %v", t.ID, err)
		}
	}

	delete(c.dirty, t.ID)
	t.Err = ""
	t.State = StateApplied
	logger.Debug("fixup task %s applied (%d edits)", t.ID, len(edits))
}

// normalizeInsertEdits matches inserted text to the insertion line's
// indentation and strips trailing blank lines.
func (c *Controller) normalizeInsertEdits(doc editor.Document, t *Task, edits []editor.Edit) []editor.Edit {
	lines := doc.Lines()
	base := ""
	if l := t.SelectionRange.Start.Line; l >= 0 && l < len(lines) {
		base = text.LeadingWhitespace(lines[l])
	}
	out := make([]editor.Edit, len(edits))
	for i, e := range edits {
		e.Lines = text.StripTrailingBlank(text.NormalizeIndent(e.Lines, base))
		out[i] = e
	}
	return out
}

// respinLocked re-requests generation against the now-current buffer text,
// bounded by MaxRespins.
func (c *Controller) respinLocked(t *Task, doc editor.Document) {
	if t.SpinCount >= c.config.MaxRespins {
		t.State = StateError
		t.Err = fmt.Sprintf("tried %d times but failed to edit the file", c.config.MaxRespins)
		logger.Warn("fixup task %s: %s", t.ID, t.Err)
		return
	}
	t.SpinCount++
	t.State = StateWorking
	t.Original = doc.GetText(t.SelectionRange)
	t.Replacement = ""
	t.Diff = nil
	logger.Debug("fixup task %s re-spin %d", t.ID, t.SpinCount)
	c.startGenerationLocked(t, doc)
}

// Accept finishes an applied task, keeping the edit in the buffer.
func (c *Controller) Accept(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return fmt.Errorf("fixup: no task %s", id)
	}
	c.finishLocked(t)
	return nil
}

// Undo reverts an applied task to its original text and finishes it.
func (c *Controller) Undo(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return fmt.Errorf("fixup: no task %s", id)
	}
	if t.State == StateApplied {
		doc, err := c.host.Document(t.Path)
		if err != nil {
			return fmt.Errorf("fixup: resolve document: %w", err)
		}
		edit := editor.Edit{
			StartLine: t.SelectionRange.Start.Line,
			EndLine:   t.SelectionRange.End.Line,
			Lines:     splitText(t.Original),
		}
		if err := doc.ApplyEdits([]editor.Edit{edit}, editor.EditOptions{UndoStopBefore: true, UndoStopAfter: true}); err != nil {
			return fmt.Errorf("fixup: revert failed: %w", err)
		}
		c.adjustTasksLocked(t.Path, []editor.Edit{edit})
	}
	c.finishLocked(t)
	return nil
}

// Cancel aborts a task's stream (if any) and discards it. An aborted stream
// is not an error.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return fmt.Errorf("fixup: no task %s", id)
	}
	c.finishLocked(t)
	return nil
}

// Retry restarts an errored task from scratch with a fresh spin budget.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return fmt.Errorf("fixup: no task %s", id)
	}
	if t.State != StateError {
		return fmt.Errorf("fixup: task %s is %s, not retryable", id, t.State)
	}
	doc, err := c.host.Document(t.Path)
	if err != nil {
		return fmt.Errorf("fixup: resolve document: %w", err)
	}
	t.SpinCount = 0
	t.Err = ""
	t.State = StateWorking
	t.Original = doc.GetText(t.SelectionRange)
	t.Replacement = ""
	t.Diff = nil
	c.startGenerationLocked(t, doc)
	return nil
}

// Tasks returns snapshots of all live tasks, oldest first.
func (c *Controller) Tasks() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].createdAt.Before(out[b].createdAt) })
	snaps := make([]Snapshot, len(out))
	for i, t := range out {
		snaps[i] = t.snapshot()
	}
	return snaps
}

// DiffFor returns the task's current diff for display, or nil.
func (c *Controller) DiffFor(id string) *text.Diff {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	if t == nil {
		return nil
	}
	return t.Diff
}

// finishLocked is the irreversible transition out of the active set.
func (c *Controller) finishLocked(t *Task) {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.State = StateFinished
	delete(c.tasks, t.ID)
	delete(c.dirty, t.ID)
	logger.Debug("fixup task %s finished", t.ID)
}

// adjustTasksLocked shifts every task's tracked range across edits the
// controller itself applied. Hosts do not echo programmatic edits back as
// change events, so this is the single bookkeeping path for our own
// mutations.
func (c *Controller) adjustTasksLocked(path string, edits []editor.Edit) {
	changes := contentChangesOf(edits)
	for _, other := range c.tasks {
		if other.Path != path {
			continue
		}
		other.SelectionRange, _ = editor.AdjustRangeAll(other.SelectionRange, changes)
	}
}

// contentChangesOf converts line edits into content changes ordered
// bottom-up so folding them preserves coordinates.
func contentChangesOf(edits []editor.Edit) []editor.ContentChange {
	sorted := append([]editor.Edit{}, edits...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].StartLine > sorted[b].StartLine })
	changes := make([]editor.ContentChange, len(sorted))
	for i, e := range sorted {
		txt := ""
		for _, l := range e.Lines {
			txt += l + "\n"
		}
		changes[i] = editor.ContentChange{
			Range: editor.Range{
				Start: editor.Position{Line: e.StartLine},
				End:   editor.Position{Line: e.EndLine},
			},
			Text: txt,
		}
	}
	return changes
}

// editedSpan is the post-apply line span the edits cover. Edit coordinates
// are pre-apply, so lines below an edit shift by the net growth of every
// edit above them.
func editedSpan(edits []editor.Edit) (start, end int) {
	sorted := append([]editor.Edit{}, edits...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].StartLine < sorted[b].StartLine })

	start = sorted[0].StartLine
	end = start
	delta := 0
	for _, e := range sorted {
		if top := e.StartLine + delta + len(e.Lines); top > end {
			end = top
		}
		delta += len(e.Lines) - (e.EndLine - e.StartLine)
	}
	return start, end
}

func splitText(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
