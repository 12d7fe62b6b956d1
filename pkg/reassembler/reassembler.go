// Package reassembler implements the egress reassembler (§4.3): it consumes
// received outer datagrams in sequence order and rebuilds the inner IP packets they
// carry, using the zero-copy IOV chain from pkg/iov so no payload byte is copied
// until final delivery to the TUN device.
package reassembler

import (
	"sync/atomic"

	"github.com/datawire/tfstunnel/pkg/buffer"
	"github.com/datawire/tfstunnel/pkg/iov"
	"github.com/datawire/tfstunnel/pkg/queue"
	"github.com/datawire/tfstunnel/pkg/wire"
)

// Reassembler holds the one piece of mutable state the egress side needs across
// datagrams: the in-progress inner packet (if any) and how many bytes remain to
// complete it. Feed is meant to be called from a single reader goroutine; SeqState
// is the only piece shared with the ack-sender, and it has its own lock.
type Reassembler struct {
	outQ *queue.Queue[*iov.Chain]
	seq  *SeqState

	current *iov.Chain
	left    int

	malformed uint64
	dropped   uint64
}

// New returns a Reassembler whose completed inner packets are delivered on an
// OutQ of the given capacity.
func New(outQCap int) *Reassembler {
	return &Reassembler{
		outQ: queue.New[*iov.Chain](outQCap),
		seq:  &SeqState{},
	}
}

// OutQ returns the queue of completed inner packets, ready for the TUN writer.
func (r *Reassembler) OutQ() *queue.Queue[*iov.Chain] { return r.outQ }

// SeqState returns the shared sequence/drop bookkeeping the ack-sender reports on.
func (r *Reassembler) SeqState() *SeqState { return r.seq }

// MalformedCount reports how many times a new inner-packet boundary could not be
// parsed (truncated or bogus IP header) and was dropped.
func (r *Reassembler) MalformedCount() uint64 { return atomic.LoadUint64(&r.malformed) }

// DroppedCount reports how many fully-reassembled inner packets were discarded
// because OutQ was full.
func (r *Reassembler) DroppedCount() uint64 { return atomic.LoadUint64(&r.dropped) }

// Feed processes one received data-frame datagram: buf's live window must be the
// full outer datagram (header followed by PayloadLen bytes of payload). Feed
// retains a reference on buf for as long as any in-progress or completed chain
// still needs its bytes; the caller must still Release its own reference once done.
func (r *Reassembler) Feed(hdr wire.Header, buf *buffer.Buffer) {
	gap, dup := r.seq.Observe(hdr.Seq)
	if dup {
		return
	}
	if gap > 0 && r.current != nil {
		// A lost datagram means the continuation this packet was waiting on
		// will never arrive (§4.3 gap handling): abandon it rather than
		// splice unrelated bytes together.
		r.current.Release()
		r.current = nil
		r.left = 0
	}

	payload := buf.Bytes()[wire.HeaderLen:]
	r.process(int(hdr.Offset), payload, buf)
}

// process walks payload once, alternating between completing/continuing
// r.current and discovering new inner-packet boundaries, per the cursor-based
// state machine described for the egress reassembler.
func (r *Reassembler) process(off int, payload []byte, buf *buffer.Buffer) {
	L := len(payload)
	cursor := 0
	skip := off

	for cursor < L {
		avail := L - cursor

		if r.current != nil {
			if skip > avail {
				// Entire remainder of this datagram continues current.
				take := avail
				if take > r.left {
					take = r.left
				}
				if take > 0 {
					r.current.Append(buf, cursor, take)
					r.left -= take
				}
				cursor += avail
				if r.left == 0 {
					r.complete()
				}
				skip = 0
				continue
			}

			// The first `skip` bytes complete current; a new boundary (if
			// any) starts right after them.
			take := skip
			if take > r.left {
				take = r.left
			}
			if take > 0 {
				r.current.Append(buf, cursor, take)
			}
			r.left -= take
			cursor += take
			r.complete()
			skip = 0
			continue
		}

		// No in-progress packet: skip bytes are remnants of a packet whose
		// head was never seen (a prior datagram was lost).
		if skip >= avail {
			return
		}
		start := cursor + skip
		b0 := payload[start]
		if wire.IsPad(b0) {
			return
		}

		remain := L - start
		var iplen int
		switch {
		case wire.IsIPv4(b0) && remain >= wire.IPv4LengthFieldEnd:
			iplen = wire.IPv4TotalLength(payload[start:])
		case wire.IsIPv6(b0) && remain >= wire.IPv6LengthFieldEnd:
			iplen = wire.IPv6TotalLength(payload[start:])
		default:
			// The packer never starts a new inner packet with fewer than
			// IPv6LengthFieldEnd bytes of budget remaining, so this means
			// corrupted or adversarial input; drop the rest of the datagram.
			atomic.AddUint64(&r.malformed, 1)
			return
		}
		if iplen <= 0 || iplen > buffer.MaxInnerPacket {
			atomic.AddUint64(&r.malformed, 1)
			return
		}

		r.current = iov.NewChain()
		r.left = iplen

		// Append whatever of the new packet is available in this datagram
		// right away — the same "consume up to r.left" logic as the
		// continuation branch above, just for a chain created this instant.
		take := L - start
		if take > r.left {
			take = r.left
		}
		if take > 0 {
			r.current.Append(buf, start, take)
			r.left -= take
		}
		cursor = start + take
		if r.left == 0 {
			r.complete()
		}
		skip = 0
	}
}

// complete pushes a finished inner packet onto OutQ, or releases it if OutQ is
// full — reassembly never blocks the datagram reader waiting for the TUN writer.
func (r *Reassembler) complete() {
	c := r.current
	r.current = nil
	r.left = 0
	if c.Len() == 0 {
		return
	}
	if !r.outQ.TryPush(c) {
		c.Release()
		atomic.AddUint64(&r.dropped, 1)
	}
}
