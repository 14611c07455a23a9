// Package console provides an in-memory scrollback buffer for recent server output.
package console

import "sync"

// DefaultScrollbackLines is the default number of lines retained.
const DefaultScrollbackLines = 1000

// Buffer is a thread-safe circular buffer holding the most recent console
// lines up to a fixed capacity. When full, the oldest line is discarded.
//
// It backs the GET /api/console endpoint; it is not a replay mechanism for
// the live WebSocket stream.
type Buffer struct {
	mu    sync.RWMutex
	lines []string
	start int
	count int
}

// NewBuffer creates a Buffer retaining up to capacity lines.
// A non-positive capacity falls back to DefaultScrollbackLines.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultScrollbackLines
	}
	return &Buffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest one if the buffer is full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.lines) {
		b.lines[(b.start+b.count)%len(b.lines)] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % len(b.lines)
}

// Lines returns a copy of the retained lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}
	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of lines currently retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of lines the buffer retains.
func (b *Buffer) Cap() int {
	return len(b.lines)
}

// Clear discards all retained lines.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
