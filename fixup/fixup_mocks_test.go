package fixup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codeassist/editor"
)

// mockDocument is an in-memory buffer. Line edits are applied bottom-up the
// way a real host does.
type mockDocument struct {
	mu          sync.Mutex
	path        string
	languageID  string
	lines       []string
	applyErr    error
	formatErr   error
	editLog     [][]editor.Edit
	optsLog     []editor.EditOptions
	formatCalls [][2]int
}

func newMockDocument(path string, lines ...string) *mockDocument {
	return &mockDocument{path: path, languageID: "go", lines: lines}
}

func (d *mockDocument) Path() string       { return d.path }
func (d *mockDocument) LanguageID() string { return d.languageID }

func (d *mockDocument) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.lines...)
}

func (d *mockDocument) GetText(r editor.Range) string {
	return editor.GetLinesText(d.Lines(), r)
}

func (d *mockDocument) ApplyEdits(edits []editor.Edit, opts editor.EditOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.applyErr != nil {
		return d.applyErr
	}

	sorted := append([]editor.Edit{}, edits...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].StartLine > sorted[b].StartLine })
	for _, e := range sorted {
		var out []string
		out = append(out, d.lines[:e.StartLine]...)
		out = append(out, e.Lines...)
		out = append(out, d.lines[e.EndLine:]...)
		d.lines = out
	}

	d.editLog = append(d.editLog, edits)
	d.optsLog = append(d.optsLog, opts)
	return nil
}

func (d *mockDocument) FormatLines(start, end int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formatCalls = append(d.formatCalls, [2]int{start, end})
	return d.formatErr
}

// setLine mutates the buffer directly, simulating a user edit the host has
// not (yet) delivered as an event.
func (d *mockDocument) setLine(i int, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[i] = content
}

type mockHost struct {
	mu      sync.Mutex
	docs    map[string]*mockDocument
	changes chan editor.DocumentChange
}

func newMockHost(docs ...*mockDocument) *mockHost {
	h := &mockHost{
		docs:    make(map[string]*mockDocument),
		changes: make(chan editor.DocumentChange, 16),
	}
	for _, d := range docs {
		h.docs[d.path] = d
	}
	return h
}

func (h *mockHost) Document(path string) (editor.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.docs[path]
	if !ok {
		return nil, fmt.Errorf("no document %s", path)
	}
	return d, nil
}

func (h *mockHost) Changes() <-chan editor.DocumentChange { return h.changes }

// genResponse scripts one GenerateEdit call.
type genResponse struct {
	chunks  []string
	err     error // delivered as a stream delta
	openErr error // returned from GenerateEdit itself
	block   bool  // hold the stream open until ctx is cancelled
	// mutate runs after the request is captured and before any chunk is
	// delivered, simulating buffer drift during generation.
	mutate func()
}

// mockGenerator replays scripted responses. The last response repeats when
// the script runs out.
type mockGenerator struct {
	mu       sync.Mutex
	script   []genResponse
	requests []EditRequest
}

func (g *mockGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *mockGenerator) lastRequest() EditRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *mockGenerator) GenerateEdit(ctx context.Context, req EditRequest) (<-chan StreamDelta, error) {
	g.mu.Lock()
	idx := len(g.requests)
	g.requests = append(g.requests, req)
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	resp := g.script[idx]
	g.mu.Unlock()

	if resp.openErr != nil {
		return nil, resp.openErr
	}
	if resp.mutate != nil {
		resp.mutate()
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		if resp.block {
			<-ctx.Done()
			return
		}
		for _, c := range resp.chunks {
			select {
			case out <- StreamDelta{Text: c}:
			case <-ctx.Done():
				return
			}
		}
		if resp.err != nil {
			select {
			case out <- StreamDelta{Err: resp.err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (c *Controller) taskByID(id string) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks[id]
}

// withTask runs fn under the controller lock, so tests can inspect task
// internals without racing the stream goroutines.
func (c *Controller) withTask(id string, fn func(*Task)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if ok {
		fn(t)
	}
	return ok
}

func (c *Controller) taskState(id string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return StateFinished, false
	}
	return t.State, true
}
