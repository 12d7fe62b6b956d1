package reassembler

import "sync"

// SeqState is the per-direction sequence bookkeeping (S in §3): the window the
// ack-sender reports on, plus the drop accounting. It is mutated by the udp-reader
// as datagrams arrive and snapshotted+reset by the ack-sender, both under the same
// lock (§5: "Sequence state... snapshotted+reset by ack-sender under the egress
// out-queue's lock" — modeled here as SeqState's own mutex).
type SeqState struct {
	mu        sync.Mutex
	startSeq  uint32 // first seq seen in the current ACK window; 0 = unset
	lastSeq   uint32 // highest in-order seq consumed
	dropCount uint32
}

// Observe records a received data-frame sequence number, returning the gap (0 if
// in-order or a duplicate/regression) so the caller can decide whether to abandon an
// in-progress inner packet.
//
//   - First valid frame seeds startSeq and lastSeq; gap is reported as 0.
//   - seq <= lastSeq: previous/duplicate; gap is reported as 0 and dup is true.
//   - seq == lastSeq+1: in-order; gap is 0.
//   - seq > lastSeq+1: gap is seq-(lastSeq+1), added to dropCount.
func (s *SeqState) Observe(seq uint32) (gap uint32, dup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSeq == 0 {
		s.startSeq = seq
		s.lastSeq = seq
		return 0, false
	}
	if seq <= s.lastSeq {
		return 0, true
	}
	if s.startSeq == 0 {
		// First frame since the last Snapshot opens a new ACK window.
		s.startSeq = seq
	}
	if seq == s.lastSeq+1 {
		s.lastSeq = seq
		return 0, false
	}
	gap = seq - (s.lastSeq + 1)
	s.dropCount += gap
	s.lastSeq = seq
	return gap, false
}

// Snapshot returns the current window and resets startSeq/dropCount, as the
// ack-sender does on each tick (§4.4). If no sequence has been observed since the
// last snapshot, ok is false and the caller should suppress the ACK.
func (s *SeqState) Snapshot() (start, end, drop uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startSeq == 0 {
		return 0, 0, 0, false
	}
	start, end, drop = s.startSeq, s.lastSeq, s.dropCount
	s.startSeq = 0
	s.dropCount = 0
	return start, end, drop, true
}
