// Package packer implements the ingress packer (§4.2): the per-tick body the pacer
// drives to fill exactly one outer datagram from whatever is available on InQ, with
// leftover carry-over across ticks when an inner packet doesn't fit.
package packer

import (
	"context"
	"io"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/tfstunnel/pkg/buffer"
	"github.com/datawire/tfstunnel/pkg/queue"
	"github.com/datawire/tfstunnel/pkg/wire"
)

// Packer holds the state a single ingress direction carries between pacing ticks:
// the outgoing sequence number and any inner-packet remainder that didn't fit in the
// last outer datagram.
type Packer struct {
	inq       *queue.Queue[*buffer.Buffer]
	outerPool *buffer.Pool
	conn      io.Writer
	sendMu    *sync.Mutex

	seq      uint32
	leftover *buffer.Buffer
}

// New returns a Packer starting at seq 1 (§9: the receiver's start_seq/last_seq are
// unset until the first datagram is seen, so 0 is reserved as "no sequence yet").
// inq supplies inner packets read off the TUN device; conn is the outer UDP socket;
// sendMu is shared with the ack-sender so the two never interleave writes.
func New(inq *queue.Queue[*buffer.Buffer], outerPool *buffer.Pool, conn io.Writer, sendMu *sync.Mutex) *Packer {
	return &Packer{
		inq:       inq,
		outerPool: outerPool,
		conn:      conn,
		sendMu:    sendMu,
		seq:       1,
	}
}

// Seq returns the next sequence number to be emitted.
func (p *Packer) Seq() uint32 { return p.seq }

// Tick fills and transmits exactly one outer datagram, per §4.2's contract. It never
// blocks on InQ (only TryPop), so it is safe to call once per pacer tick without
// risking a missed deadline. Transmission failures are logged and absorbed here —
// they never propagate as a fatal error, per §7's error kind table.
func (p *Packer) Tick(ctx context.Context) {
	out := p.outerPool.Get()

	var hdr wire.Header
	hdr.Seq = p.seq

	var active *buffer.Buffer
	switch {
	case p.leftover != nil:
		active = p.leftover
		p.leftover = nil
		hdr.Offset = uint16(active.Len())

	default:
		if pkt, ok := p.inq.TryPop(); ok {
			active = pkt
			hdr.Offset = 0
		} else {
			hdr.Offset = uint16(wire.PayloadLen)
			hdr.Encode(out.Grow(wire.HeaderLen))
			zeroFill(out, wire.PayloadLen)
			p.transmit(ctx, out)
			return
		}
	}

	hdr.Encode(out.Grow(wire.HeaderLen))
	budget := wire.PayloadLen

	for budget > 0 {
		if active == nil || budget <= 6 {
			zeroFill(out, budget)
			break
		}

		mlen := active.Len()
		if mlen > budget {
			out.Append(active.Slice(0, budget))
			active.ShrinkFront(budget)
			p.leftover = active
			active = nil
			break
		}

		out.Append(active.Bytes())
		active.Release()
		active = nil
		budget -= mlen

		if budget > 6 {
			if pkt, ok := p.inq.TryPop(); ok {
				active = pkt
			}
		}
	}

	p.transmit(ctx, out)
}

// transmit sends one fully-built outer datagram and always advances seq, preserving
// monotonicity even on failure (§4.2's invariant). A leftover set by this tick is
// discarded on a short or failed write so the receiver never waits on bytes that
// were never sent.
func (p *Packer) transmit(ctx context.Context, out *buffer.Buffer) {
	data := out.Bytes()

	p.sendMu.Lock()
	n, err := p.conn.Write(data)
	p.sendMu.Unlock()

	out.Release()
	p.seq++

	if err != nil {
		dlog.Errorf(ctx, "packer: outer send failed: %v", err)
	} else if n != len(data) {
		dlog.Errorf(ctx, "packer: short outer write (%d of %d bytes)", n, len(data))
	} else {
		return
	}

	if p.leftover != nil {
		p.leftover.Release()
		p.leftover = nil
	}
}

func zeroFill(b *buffer.Buffer, n int) {
	s := b.Grow(n)
	for i := range s {
		s[i] = 0
	}
}
