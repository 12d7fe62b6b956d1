package packer

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/tfstunnel/pkg/buffer"
	"github.com/datawire/tfstunnel/pkg/queue"
	"github.com/datawire/tfstunnel/pkg/wire"
)

type recordingConn struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last []byte
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = append([]byte(nil), p...)
	return c.buf.Write(p)
}

func newPacker(t *testing.T) (*Packer, *recordingConn) {
	t.Helper()
	inq := queue.New[*buffer.Buffer](8)
	pool := buffer.NewPool(8)
	conn := &recordingConn{}
	return New(inq, pool, conn, &sync.Mutex{}), conn
}

// S1: empty InQ produces pad-only datagrams with offset == payload length.
func TestPackerEmptyLine(t *testing.T) {
	p, conn := newPacker(t)

	ctx := context.Background()
	p.Tick(ctx)

	require.Len(t, conn.last, wire.OuterMTU)
	kind, hdr := wire.Classify(conn.last)
	require.Equal(t, wire.KindData, kind)
	assert.Equal(t, uint32(1), hdr.Seq)
	assert.Equal(t, uint16(wire.PayloadLen), hdr.Offset)
	for _, b := range conn.last[wire.HeaderLen:] {
		assert.Equal(t, byte(0), b)
	}
	assert.Equal(t, uint32(2), p.Seq())
}

// S2: one small packet per tick, offset 0, padded to full MTU.
func TestPackerOneSmallPacketPerTick(t *testing.T) {
	inq := queue.New[*buffer.Buffer](8)
	pool := buffer.NewPool(8)
	conn := &recordingConn{}
	p := New(inq, pool, conn, &sync.Mutex{})

	pkt := make([]byte, 64)
	for i := range pkt {
		pkt[i] = byte(i)
	}
	b := pool.Get()
	b.Append(pkt)
	inq.Push(b)

	p.Tick(context.Background())

	require.Len(t, conn.last, wire.OuterMTU)
	_, hdr := wire.Classify(conn.last)
	assert.Equal(t, uint16(0), hdr.Offset)
	assert.Equal(t, pkt, conn.last[wire.HeaderLen:wire.HeaderLen+64])
	for _, bb := range conn.last[wire.HeaderLen+64:] {
		assert.Equal(t, byte(0), bb)
	}
}

// S3: a packet larger than one datagram's budget carries over as leftover, with the
// second tick's offset equal to the continuation length.
func TestPackerLeftoverSpansTwoTicks(t *testing.T) {
	inq := queue.New[*buffer.Buffer](8)
	pool := buffer.NewPool(8)
	conn := &recordingConn{}
	p := New(inq, pool, conn, &sync.Mutex{})

	pkt := make([]byte, 2000)
	for i := range pkt {
		pkt[i] = byte(i)
	}
	b := pool.Get()
	b.Append(pkt)
	inq.Push(b)

	p.Tick(context.Background())
	first := append([]byte(nil), conn.last...)
	_, hdr1 := wire.Classify(first)
	assert.Equal(t, uint16(0), hdr1.Offset)
	assert.Equal(t, pkt[:wire.PayloadLen], first[wire.HeaderLen:])

	p.Tick(context.Background())
	second := conn.last
	_, hdr2 := wire.Classify(second)
	remaining := len(pkt) - wire.PayloadLen
	assert.Equal(t, uint16(remaining), hdr2.Offset)
	assert.Equal(t, pkt[wire.PayloadLen:], second[wire.HeaderLen:wire.HeaderLen+remaining])
	for _, bb := range second[wire.HeaderLen+remaining:] {
		assert.Equal(t, byte(0), bb)
	}
}

func TestPackerSeqMonotonic(t *testing.T) {
	p, _ := newPacker(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p.Tick(ctx)
	}
	assert.Equal(t, uint32(6), p.Seq())
}
