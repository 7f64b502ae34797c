package util

import "sync"

// DefaultTailSize is enough stderr to hold the last few FFmpeg or arecord lines.
const DefaultTailSize = 4096

// TailBuffer is an io.Writer that keeps only the last size bytes written.
// Capture and encoder processes log to it for their whole life; only the
// final lines are ever read. It is safe for concurrent use.
type TailBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
}

// NewTailBuffer creates a buffer holding at most size bytes.
func NewTailBuffer(size int) *TailBuffer {
	return &TailBuffer{size: max(size, 1)}
}

// Write appends p, discarding the oldest bytes beyond the limit.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if n >= t.size {
		t.buf = append(t.buf[:0], p[n-t.size:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.size; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

// String returns the retained bytes.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// LastLine returns the last meaningful line, as ExtractLastError does.
func (t *TailBuffer) LastLine() string {
	return ExtractLastError(t.String())
}
