// bounded output buffer: a FIFO of read-sized chunks.
//
// the cap is a chunk count, not lines or bytes. a chunk is whatever one
// read returned, so retention in lines depends on how the worker
// flushes. that imprecision is accepted.

package main

import (
	"strings"
	"sync"
	"time"
)

const defaultBufferCapacity = 1000

type outputBuffer struct {
	mu       sync.Mutex
	capacity int
	chunks   []chunk
	bytes    int
	version  uint64 // bumped on every append
}

func newOutputBuffer(capacity int) *outputBuffer {
	if capacity < 1 {
		capacity = defaultBufferCapacity
	}
	return &outputBuffer{capacity: capacity}
}

// append adds one chunk, evicting the oldest ones past capacity.
// safe for concurrent use by both drain goroutines of a worker.
func (b *outputBuffer) append(text string, at time.Time) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, chunk{at: at, text: text})
	b.bytes += len(text)
	b.version++
	if over := len(b.chunks) - b.capacity; over > 0 {
		for _, c := range b.chunks[:over] {
			b.bytes -= len(c.text)
		}
		// copy into a fresh slice so evicted strings can be collected
		b.chunks = append([]chunk(nil), b.chunks[over:]...)
	}
}

// snapshot returns a copy of the current chunks in arrival order.
func (b *outputBuffer) snapshot() []chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]chunk(nil), b.chunks...)
}

func (b *outputBuffer) text() string {
	var sb strings.Builder
	for _, c := range b.snapshot() {
		sb.WriteString(c.text)
	}
	return sb.String()
}

func (b *outputBuffer) stats() (chunks, bytes int, version uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks), b.bytes, b.version
}
