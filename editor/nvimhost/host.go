// Package nvimhost backs the editor abstraction with a live Neovim
// instance over msgpack RPC.
package nvimhost

import (
	"fmt"
	"strings"
	"sync"

	"github.com/neovim/go-client/nvim"

	"codeassist/editor"
	"codeassist/logger"
)

const changeEventMethod = "codeassist_buf_change"

// attachLua attaches to a buffer and forwards its line events back over
// RPC. The undo heuristic compares undotree sequence numbers across
// changes.
const attachLua = `
local chanID, bufnr = ...
if vim.b[bufnr].codeassist_attached then return end
vim.b[bufnr].codeassist_attached = true
local last_seq = vim.fn.undotree().seq_cur
vim.api.nvim_buf_attach(bufnr, false, {
	on_lines = function(_, buf, tick, first, last, new_last)
		local reason = "edit"
		local seq = vim.fn.undotree().seq_cur
		if seq < last_seq then
			reason = "undo"
		elseif seq == last_seq then
			reason = "redo"
		end
		last_seq = seq
		vim.schedule(function()
			vim.fn.rpcnotify(chanID, "codeassist_buf_change",
				buf, tick, first, last, new_last, reason, false)
		end)
	end,
})
vim.api.nvim_create_autocmd("BufWritePost", {
	buffer = bufnr,
	callback = function()
		local tick = vim.api.nvim_buf_get_changedtick(bufnr)
		vim.fn.rpcnotify(chanID, "codeassist_buf_change",
			bufnr, tick, 0, 0, 0, "save", true)
	end,
})
`

type Config struct {
	// ChangeBuffer is the change channel capacity.
	ChangeBuffer int
}

// Host adapts a Neovim session to editor.Host. Programmatic edits are
// filtered out of the change stream by changedtick bookkeeping, so
// Changes() carries user activity only.
type Host struct {
	client *nvim.Nvim

	mu      sync.Mutex
	ownTick map[nvim.Buffer]int
	paths   map[nvim.Buffer]string

	changes chan editor.DocumentChange
	closed  bool
}

func New(client *nvim.Nvim, config Config) *Host {
	if config.ChangeBuffer <= 0 {
		config.ChangeBuffer = 64
	}
	return &Host{
		client:  client,
		ownTick: make(map[nvim.Buffer]int),
		paths:   make(map[nvim.Buffer]string),
		changes: make(chan editor.DocumentChange, config.ChangeBuffer),
	}
}

// Start registers the RPC change handler and attaches to the current
// buffer. Later buffers attach on first Document lookup.
func (h *Host) Start() error {
	if err := h.client.RegisterHandler(changeEventMethod, h.onBufChange); err != nil {
		return fmt.Errorf("nvimhost: register handler: %w", err)
	}

	if buf, err := h.client.CurrentBuffer(); err == nil {
		if err := h.attach(buf); err != nil {
			logger.Warn("nvimhost: attach current buffer: %v", err)
		}
	}
	return nil
}

// Close stops delivering change events.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.changes)
	}
}

func (h *Host) Changes() <-chan editor.DocumentChange { return h.changes }

// Document resolves a path to a live buffer. Buffers are attached on
// first lookup.
func (h *Host) Document(path string) (editor.Document, error) {
	var bufnr int
	batch := h.client.NewBatch()
	batch.ExecLua(`return vim.fn.bufnr(...)`, &bufnr, path)
	if err := batch.Execute(); err != nil {
		return nil, fmt.Errorf("nvimhost: resolve buffer for %s: %w", path, err)
	}
	if bufnr < 0 {
		return nil, fmt.Errorf("nvimhost: no buffer for %s", path)
	}

	buf := nvim.Buffer(bufnr)
	h.mu.Lock()
	h.paths[buf] = path
	h.mu.Unlock()

	if err := h.attach(buf); err != nil {
		return nil, err
	}
	return &document{host: h, id: buf, path: path}, nil
}

func (h *Host) attach(buf nvim.Buffer) error {
	batch := h.client.NewBatch()
	batch.ExecLua(attachLua, nil, h.client.ChannelID(), int(buf))
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("nvimhost: attach buffer %d: %w", int(buf), err)
	}
	return nil
}

// onBufChange converts a buffer line event into a DocumentChange. The
// replaced region's new text is fetched in a follow-up round-trip so the
// change carries real line content.
func (h *Host) onBufChange(_ *nvim.Nvim, bufnr, tick, first, last, newLast int, reason string, saved bool) {
	buf := nvim.Buffer(bufnr)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	path := h.paths[buf]
	own := h.ownTick[buf]
	h.mu.Unlock()

	if tick <= own && !saved {
		// Echo of an edit this process applied. A save does not bump the
		// changedtick, so save events pass through regardless.
		return
	}
	if path == "" {
		return
	}

	dc := editor.DocumentChange{Path: path, Saved: saved}
	switch reason {
	case "undo":
		dc.Reason = editor.ReasonUndo
	case "redo":
		dc.Reason = editor.ReasonRedo
	default:
		dc.Reason = editor.ReasonEdit
	}

	if !saved {
		text := ""
		if newLast > first {
			var raw [][]byte
			batch := h.client.NewBatch()
			batch.BufferLines(buf, first, newLast, false, &raw)
			if err := batch.Execute(); err != nil {
				logger.Warn("nvimhost: fetch changed lines: %v", err)
			} else {
				var sb strings.Builder
				for _, l := range raw {
					sb.Write(l)
					sb.WriteByte('\n')
				}
				text = sb.String()
			}
		}
		dc.Changes = []editor.ContentChange{{
			Range: editor.Range{
				Start: editor.Position{Line: first},
				End:   editor.Position{Line: last},
			},
			Text: text,
		}}
	}

	select {
	case h.changes <- dc:
	default:
		logger.Warn("nvimhost: change channel full, dropping event for %s", path)
	}
}

// markOwn records the buffer's changedtick after a programmatic edit so
// the echoed line events are dropped.
func (h *Host) markOwn(buf nvim.Buffer) {
	var tick int
	batch := h.client.NewBatch()
	batch.ExecLua(`return vim.api.nvim_buf_get_changedtick(...)`, &tick, int(buf))
	if err := batch.Execute(); err != nil {
		logger.Warn("nvimhost: read changedtick: %v", err)
		return
	}
	h.mu.Lock()
	if tick > h.ownTick[buf] {
		h.ownTick[buf] = tick
	}
	h.mu.Unlock()
}

// document is a thin view over a buffer. Reads are live round-trips, in
// line with reading through a batch on every sync.
type document struct {
	host *Host
	id   nvim.Buffer
	path string
}

func (d *document) Path() string { return d.path }

func (d *document) LanguageID() string {
	var ft string
	batch := d.host.client.NewBatch()
	batch.ExecLua(`return vim.bo[...].filetype`, &ft, int(d.id))
	if err := batch.Execute(); err != nil {
		logger.Warn("nvimhost: read filetype: %v", err)
		return ""
	}
	return ft
}

func (d *document) Lines() []string {
	var raw [][]byte
	batch := d.host.client.NewBatch()
	batch.BufferLines(d.id, 0, -1, false, &raw)
	if err := batch.Execute(); err != nil {
		logger.Error("nvimhost: read buffer lines: %v", err)
		return nil
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines
}

func (d *document) GetText(r editor.Range) string {
	return editor.GetLinesText(d.Lines(), r)
}

// ApplyEdits applies line edits as one atomic batch, bottom-up so line
// coordinates stay valid throughout.
func (d *document) ApplyEdits(edits []editor.Edit, opts editor.EditOptions) error {
	if len(edits) == 0 {
		return nil
	}
	sorted := append([]editor.Edit{}, edits...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].StartLine > sorted[i].StartLine {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	batch := d.host.client.NewBatch()
	if opts.UndoStopBefore {
		// Break the undo sequence so the whole batch is one undo step.
		batch.ExecLua(`vim.cmd('let &undolevels=&undolevels')`, nil, nil)
	}
	for _, e := range sorted {
		replacement := make([][]byte, len(e.Lines))
		for i, l := range e.Lines {
			replacement[i] = []byte(l)
		}
		batch.SetBufferLines(d.id, e.StartLine, e.EndLine, false, replacement)
	}
	if opts.UndoStopAfter {
		batch.ExecLua(`vim.cmd('let &undolevels=&undolevels')`, nil, nil)
	}
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("nvimhost: apply edits: %w", err)
	}
	d.host.markOwn(d.id)
	return nil
}

// FormatLines re-indents a line span with the buffer's indent rules. The
// re-indent joins the preceding edit's undo step, so one user undo reverts
// edit and formatting together.
func (d *document) FormatLines(start, end int) error {
	if end <= start {
		return nil
	}
	batch := d.host.client.NewBatch()
	batch.ExecLua(formatCmd(int(d.id), start, end), nil, nil)
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("nvimhost: format lines: %w", err)
	}
	d.host.markOwn(d.id)
	return nil
}

// formatCmd builds the Lua re-indenting a 0-indexed, end-exclusive line
// span. undojoin fails harmlessly when no change precedes it, hence the
// pcall.
func formatCmd(buf, start, end int) string {
	return fmt.Sprintf(
		`vim.api.nvim_buf_call(%d, function() pcall(vim.cmd, 'undojoin') vim.cmd('silent! %d,%dnormal! ==') end)`,
		buf, start+1, end)
}
