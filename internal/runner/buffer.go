// buffer.go provides a size-capped output buffer for subprocess capture.
package runner

import (
	"bytes"
	"sync"
)

// cappedBuffer accumulates writes up to a fixed limit and silently discards
// the rest. Writes never fail so a chatty child process keeps running and
// is judged by its exit status, not by a broken pipe.
//
// Both stdout and stderr of a command point at the same cappedBuffer, which
// gives interleaved combined output. The mutex serializes those two writers.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &cappedBuffer{limit: limit}
}

// Write stores up to the remaining capacity and reports the full length as
// written so the child's pipe never blocks or errors.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
