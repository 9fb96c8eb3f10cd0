package process

import (
	"fmt"
	"sync"
)

// CappedBuffer keeps the first Cap bytes written to it and counts the rest.
// It is safe for concurrent writes.
type CappedBuffer struct {
	mu      sync.Mutex
	cap     int
	buf     []byte
	dropped int64
}

// NewCappedBuffer returns a buffer holding at most capBytes bytes.
func NewCappedBuffer(capBytes int) *CappedBuffer {
	if capBytes < 0 {
		capBytes = 0
	}
	return &CappedBuffer{cap: capBytes}
}

// Write never fails so the child is never blocked on a full pipe.
func (b *CappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.cap - len(b.buf)
	if room > 0 {
		n := min(room, len(p))
		b.buf = append(b.buf, p[:n]...)
		b.dropped += int64(len(p) - n)
	} else {
		b.dropped += int64(len(p))
	}
	return len(p), nil
}

// Truncated reports whether any output was discarded.
func (b *CappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// String returns the captured text, with a marker naming the discarded byte
// count when output was truncated.
func (b *CappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return string(b.buf)
	}
	return string(b.buf) + TruncationMarker(b.dropped)
}

// TruncationMarker is appended to captured output that exceeded the cap.
func TruncationMarker(dropped int64) string {
	return fmt.Sprintf("\n...[truncated %d bytes]", dropped)
}
