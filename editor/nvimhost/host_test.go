package nvimhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTrackedHost returns a host that already knows one buffer, without a
// live nvim behind it. Only paths through onBufChange that make no RPC
// round-trips can be exercised this way.
func newTrackedHost(path string, ownTick int) *Host {
	h := New(nil, Config{})
	h.mu.Lock()
	h.paths[1] = path
	h.ownTick[1] = ownTick
	h.mu.Unlock()
	return h
}

func TestSaveEventPassesEchoFilter(t *testing.T) {
	h := newTrackedHost("main.go", 42)

	// BufWritePost right after a programmatic edit reports the edit's own
	// changedtick; the save must still reach the observer.
	h.onBufChange(nil, 1, 42, 0, 0, 0, "save", true)

	select {
	case dc := <-h.Changes():
		assert.True(t, dc.Saved)
		assert.Equal(t, "main.go", dc.Path)
		assert.Empty(t, dc.Changes)
	default:
		t.Fatal("save event was dropped by the echo filter")
	}
}

func TestEchoedEditIsDropped(t *testing.T) {
	h := newTrackedHost("main.go", 42)

	h.onBufChange(nil, 1, 42, 0, 1, 1, "edit", false)

	select {
	case <-h.Changes():
		t.Fatal("echoed edit leaked into the change stream")
	default:
	}
}

func TestUserDeletionPassesThrough(t *testing.T) {
	h := newTrackedHost("main.go", 42)

	// A pure deletion needs no line fetch, so it runs without a client.
	h.onBufChange(nil, 1, 43, 2, 3, 2, "edit", false)

	select {
	case dc := <-h.Changes():
		require.Len(t, dc.Changes, 1)
		assert.Equal(t, 2, dc.Changes[0].Range.Start.Line)
		assert.Equal(t, 3, dc.Changes[0].Range.End.Line)
		assert.Empty(t, dc.Changes[0].Text)
	default:
		t.Fatal("user edit was dropped")
	}
}

func TestFormatCmdJoinsUndoAndConvertsRange(t *testing.T) {
	cmd := formatCmd(3, 4, 9)

	assert.Contains(t, cmd, "nvim_buf_call(3,")
	assert.Contains(t, cmd, "undojoin")
	// 0-indexed [4,9) becomes the 1-indexed inclusive vim range 5,9.
	assert.Contains(t, cmd, "5,9normal! ==")
}
