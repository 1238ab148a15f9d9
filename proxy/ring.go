package proxy

import "sync"

// DiagnosticTailLines is the number of recent worker output lines retained
// for crash diagnostics.
const DiagnosticTailLines = 10

// tailBuffer is a bounded FIFO of the most recent raw output lines from the
// worker's stdout/stderr. Used only for operator-facing crash messages,
// never for protocol logic.
type tailBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{capacity: capacity}
}

// Append records a line, evicting the oldest once at capacity.
func (b *tailBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == b.capacity {
		copy(b.lines, b.lines[1:])
		b.lines[len(b.lines)-1] = line
		return
	}
	b.lines = append(b.lines, line)
}

// Tail returns a copy of the retained lines, oldest first.
func (b *tailBuffer) Tail() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
