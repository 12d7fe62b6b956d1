// Package buffer implements the fixed-capacity byte buffer (B) that every outer
// datagram and every inner packet is read into and assembled from.
package buffer

import "sync/atomic"

const (
	// MaxBuf is the capacity reserved for every pool-allocated buffer: enough for
	// the largest inner packet (MRU) plus HdrSpace bytes of head room.
	MaxBuf = 9018

	// HdrSpace is the head room reserved at the front of every buffer so that
	// lower layers can prepend framing without a copy.
	HdrSpace = 18

	// MaxInnerPacket is the largest inner IP packet a TUN read/write may carry.
	MaxInnerPacket = MaxBuf - HdrSpace
)

// Buffer owns a contiguous byte region of capacity MaxBuf and exposes a movable
// [start, end) window inside it. It is allocated once from a Pool and cycled between
// the pool and work queues; it is never freed during steady-state operation.
type Buffer struct {
	space []byte
	start int
	end   int
	refs  int32

	pool *Pool
}

func newBuffer(pool *Pool) *Buffer {
	b := &Buffer{space: make([]byte, MaxBuf), pool: pool}
	b.Reset()
	return b
}

// Reset restores the window to empty at the head-room offset and clears the
// reference count. Called only while a buffer is owned exclusively by its caller
// (i.e. after it has been returned to the pool).
func (b *Buffer) Reset() {
	b.start = HdrSpace
	b.end = HdrSpace
	atomic.StoreInt32(&b.refs, 0)
}

// Len returns the number of live bytes currently in the window.
func (b *Buffer) Len() int { return b.end - b.start }

// After returns the number of free bytes after the window, before the capacity ends.
func (b *Buffer) After() int { return len(b.space) - b.end }

// Before returns the number of free bytes before the window starts.
func (b *Buffer) Before() int { return b.start }

// Bytes returns the live window as a slice. The slice aliases the buffer's backing
// array; callers that retain it across a Reset must Retain the buffer first.
func (b *Buffer) Bytes() []byte { return b.space[b.start:b.end] }

// Slice returns the sub-window [off,off+n) of the live bytes, relative to start.
func (b *Buffer) Slice(off, n int) []byte { return b.space[b.start+off : b.start+off+n] }

// ShrinkFront advances start by n, discarding the first n bytes of the window.
func (b *Buffer) ShrinkFront(n int) {
	b.start += n
	if b.start > b.end {
		b.start = b.end
	}
}

// ShrinkBack moves end toward start by n, discarding the last n bytes of the window.
func (b *Buffer) ShrinkBack(n int) {
	b.end -= n
	if b.end < b.start {
		b.end = b.start
	}
}

// Grow extends the window by n bytes at the back, returning the newly exposed
// sub-slice for the caller to fill. Panics if there isn't enough capacity, since
// that would indicate a framing bug rather than a recoverable runtime condition.
func (b *Buffer) Grow(n int) []byte {
	if n > b.After() {
		panic("buffer: grow exceeds capacity")
	}
	s := b.end
	b.end += n
	return b.space[s:b.end]
}

// Append copies p onto the end of the window, growing it.
func (b *Buffer) Append(p []byte) {
	copy(b.Grow(len(p)), p)
}

// PrependHeader reserves n bytes immediately before the current window and returns
// them for the caller to fill; used to attach the outer framing header without a
// second allocation.
func (b *Buffer) PrependHeader(n int) []byte {
	if n > b.Before() {
		panic("buffer: prepend exceeds head room")
	}
	b.start -= n
	return b.space[b.start : b.start+n]
}

// Retain increments the buffer's reference count. Called whenever an IOV chain
// appends a slice of this buffer.
func (b *Buffer) Retain() { atomic.AddInt32(&b.refs, 1) }

// Release decrements the buffer's reference count and returns it to its pool once
// the count reaches zero. Safe to call from any goroutine.
func (b *Buffer) Release() {
	if atomic.AddInt32(&b.refs, -1) == 0 && b.pool != nil {
		b.pool.put(b)
	}
}
