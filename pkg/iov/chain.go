// Package iov implements the zero-copy IOV chain (C) that the egress reassembler
// uses to rebuild an inner packet from slices of one or more outer-datagram buffers,
// without copying any payload bytes.
package iov

import "github.com/datawire/tfstunnel/pkg/buffer"

// Slice is one (buffer, range) link in a Chain.
type Slice struct {
	Buf  *buffer.Buffer
	Off  int
	Len  int
}

// Chain is an ordered list of buffer slices that together make up one inner packet.
// Appending a slice retains its buffer; Release releases every buffer it
// references. A buffer only returns to its pool once every Chain referencing it has
// released it — see buffer.Buffer.Retain/Release.
type Chain struct {
	slices []Slice
	length int
}

// NewChain returns an empty chain.
func NewChain() *Chain { return &Chain{} }

// Append adds the n bytes at offset off within b to the chain, retaining b.
func (c *Chain) Append(b *buffer.Buffer, off, n int) {
	if n <= 0 {
		return
	}
	b.Retain()
	c.slices = append(c.slices, Slice{Buf: b, Off: off, Len: n})
	c.length += n
}

// Len returns the total number of bytes across all slices in the chain.
func (c *Chain) Len() int { return c.length }

// Slices returns the chain's (buffer, range) links in append order.
func (c *Chain) Slices() []Slice { return c.slices }

// Bytes flattens the chain into one contiguous slice. Used by callers (the
// interface-writer) that don't use a scatter-write API; it does copy, unlike
// Slices, which is the zero-copy path.
func (c *Chain) Bytes() []byte {
	out := make([]byte, 0, c.length)
	for _, s := range c.slices {
		out = append(out, s.Buf.Slice(s.Off, s.Len)...)
	}
	return out
}

// Release releases every buffer this chain referenced and empties it. Must be
// called exactly once per chain, after its bytes have been consumed (e.g. written
// to TUN).
func (c *Chain) Release() {
	for _, s := range c.slices {
		s.Buf.Release()
	}
	c.slices = nil
	c.length = 0
}
