package iov

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/tfstunnel/pkg/buffer"
)

func TestChainAppendAndBytes(t *testing.T) {
	pool := buffer.NewPool(2)
	b1 := pool.Get()
	b1.Append([]byte("hello "))
	b2 := pool.Get()
	b2.Append([]byte("world"))

	c := NewChain()
	c.Append(b1, 0, b1.Len())
	c.Append(b2, 0, b2.Len())

	assert.Equal(t, 11, c.Len())
	assert.Equal(t, "hello world", string(c.Bytes()))

	b1.Release()
	b2.Release()
	assert.Nil(t, pool.TryGet(), "buffers must stay retained while the chain holds them")

	c.Release()
	assert.NotNil(t, pool.TryGet())
	assert.NotNil(t, pool.TryGet())
}

func TestChainAppendZeroLengthIsNoop(t *testing.T) {
	pool := buffer.NewPool(1)
	b := pool.Get()
	b.Append([]byte("x"))

	c := NewChain()
	c.Append(b, 0, 0)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Slices())

	b.Release()
}

func TestChainPartialSlice(t *testing.T) {
	pool := buffer.NewPool(1)
	b := pool.Get()
	b.Append([]byte("0123456789"))

	c := NewChain()
	c.Append(b, 2, 4)
	assert.Equal(t, "2345", string(c.Bytes()))
	b.Release()
	c.Release()
}
