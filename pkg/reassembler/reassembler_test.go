package reassembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/tfstunnel/pkg/buffer"
	"github.com/datawire/tfstunnel/pkg/wire"
)

func datagram(t *testing.T, pool *buffer.Pool, seq uint32, offset uint16, payload []byte) *buffer.Buffer {
	t.Helper()
	require.LessOrEqual(t, len(payload), wire.PayloadLen)
	b := pool.Get()
	hdr := wire.Header{Seq: seq, Offset: offset}
	hdr.Encode(b.Grow(wire.HeaderLen))
	p := b.Grow(wire.PayloadLen)
	copy(p, payload)
	return b
}

func ipv4Packet(totalLen int) []byte {
	p := make([]byte, totalLen)
	p[0] = 0x45
	p[2] = byte(totalLen >> 8)
	p[3] = byte(totalLen)
	for i := 8; i < totalLen; i++ {
		p[i] = byte(i)
	}
	return p
}

// S1: an empty line of pad-only datagrams assembles nothing.
func TestReassemblerEmptyLine(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	payload := make([]byte, wire.PayloadLen)
	b := datagram(t, pool, 1, uint16(wire.PayloadLen), payload)
	r.Feed(wire.Header{Seq: 1, Offset: uint16(wire.PayloadLen)}, b)
	b.Release()

	_, ok := r.OutQ().TryPop()
	assert.False(t, ok)
	assert.Zero(t, r.MalformedCount())
}

// S2: one small packet per datagram, offset 0, rest padded.
func TestReassemblerOneSmallPacketPerTick(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	pkt := ipv4Packet(64)
	payload := make([]byte, wire.PayloadLen)
	copy(payload, pkt)

	b := datagram(t, pool, 1, 0, payload)
	r.Feed(wire.Header{Seq: 1, Offset: 0}, b)
	b.Release()

	chain, ok := r.OutQ().TryPop()
	require.True(t, ok)
	assert.Equal(t, 64, chain.Len())
	assert.Equal(t, pkt, chain.Bytes())
	chain.Release()
}

// S3: one 2000-byte packet spanning two datagrams.
func TestReassemblerPacketSpanningTwoDatagrams(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	pkt := ipv4Packet(2000)

	payload1 := make([]byte, wire.PayloadLen)
	copy(payload1, pkt[:wire.PayloadLen])
	b1 := datagram(t, pool, 1, 0, payload1)
	r.Feed(wire.Header{Seq: 1, Offset: 0}, b1)
	b1.Release()

	_, ok := r.OutQ().TryPop()
	assert.False(t, ok, "packet must not be delivered before the continuation arrives")

	remaining := 2000 - wire.PayloadLen // 508
	payload2 := make([]byte, wire.PayloadLen)
	copy(payload2, pkt[wire.PayloadLen:])
	b2 := datagram(t, pool, 2, uint16(remaining), payload2)
	r.Feed(wire.Header{Seq: 2, Offset: uint16(remaining)}, b2)
	b2.Release()

	chain, ok := r.OutQ().TryPop()
	require.True(t, ok)
	assert.Equal(t, 2000, chain.Len())
	assert.Equal(t, pkt, chain.Bytes())
	chain.Release()
}

// S4: two packets, the second straddling the datagram boundary.
func TestReassemblerBoundaryMidDatagram(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	a := ipv4Packet(1000)
	b := ipv4Packet(800)

	payload1 := make([]byte, wire.PayloadLen)
	copy(payload1, a)
	copy(payload1[1000:], b[:492])
	d1 := datagram(t, pool, 1, 0, payload1)
	r.Feed(wire.Header{Seq: 1, Offset: 0}, d1)
	d1.Release()

	chainA, ok := r.OutQ().TryPop()
	require.True(t, ok)
	assert.Equal(t, a, chainA.Bytes())
	chainA.Release()

	_, ok = r.OutQ().TryPop()
	assert.False(t, ok)

	payload2 := make([]byte, wire.PayloadLen)
	copy(payload2, b[492:])
	d2 := datagram(t, pool, 2, 308, payload2)
	r.Feed(wire.Header{Seq: 2, Offset: 308}, d2)
	d2.Release()

	chainB, ok := r.OutQ().TryPop()
	require.True(t, ok)
	assert.Equal(t, b, chainB.Bytes())
	chainB.Release()
}

// S5: seq 3 is lost; the in-progress packet started at seq 2 is abandoned, no
// partial packet is ever delivered, and drop_count increments by exactly one.
func TestReassemblerGapRecovery(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	p1 := ipv4Packet(64)
	payload1 := make([]byte, wire.PayloadLen)
	copy(payload1, p1)
	d1 := datagram(t, pool, 1, 0, payload1)
	r.Feed(wire.Header{Seq: 1, Offset: 0}, d1)
	d1.Release()
	c1, ok := r.OutQ().TryPop()
	require.True(t, ok)
	c1.Release()

	// seq 2 starts a 2000-byte packet that would need seq 3's continuation.
	big := ipv4Packet(2000)
	payload2 := make([]byte, wire.PayloadLen)
	copy(payload2, big[:wire.PayloadLen])
	d2 := datagram(t, pool, 2, 0, payload2)
	r.Feed(wire.Header{Seq: 2, Offset: 0}, d2)
	d2.Release()

	// seq 3 is dropped in transit; seq 4 arrives next with a fresh boundary at 0.
	p4 := ipv4Packet(64)
	payload4 := make([]byte, wire.PayloadLen)
	copy(payload4, p4)
	d4 := datagram(t, pool, 4, 0, payload4)
	r.Feed(wire.Header{Seq: 4, Offset: 0}, d4)
	d4.Release()

	chain, ok := r.OutQ().TryPop()
	require.True(t, ok)
	assert.Equal(t, p4, chain.Bytes(), "no partial packet from seq 2 should ever surface")
	chain.Release()

	_, ok = r.OutQ().TryPop()
	assert.False(t, ok)

	start, end, drop, ok := r.SeqState().Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint32(1), start)
	assert.Equal(t, uint32(4), end)
	assert.Equal(t, uint32(1), drop)
}

func TestReassemblerDuplicateSeqIgnored(t *testing.T) {
	pool := buffer.NewPool(4)
	r := New(4)

	p := ipv4Packet(64)
	payload := make([]byte, wire.PayloadLen)
	copy(payload, p)

	d1 := datagram(t, pool, 5, 0, payload)
	r.Feed(wire.Header{Seq: 5, Offset: 0}, d1)
	d1.Release()
	_, ok := r.OutQ().TryPop()
	require.True(t, ok)

	d2 := datagram(t, pool, 5, 0, payload)
	r.Feed(wire.Header{Seq: 5, Offset: 0}, d2)
	d2.Release()
	_, ok = r.OutQ().TryPop()
	assert.False(t, ok, "a duplicate/old sequence number must not be reprocessed")
}
