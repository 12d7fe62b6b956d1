package wire

import "encoding/binary"

// AckLen is the total size of an ACK datagram (§4.4).
const AckLen = 24

// AckSentinel is the value written at offset 0 of an ACK datagram: there is no
// sequence number on an ACK.
const AckSentinel uint32 = 0xFFFF_FFFF

// dropCountMask keeps drop_count to its low 24 bits when packed into the ACK's
// second word alongside the 0x4000_0000 classification pattern.
const dropCountMask = 0x00FF_FFFF

// MaxDropCount is the largest drop_count an ACK datagram can carry.
const MaxDropCount = dropCountMask

// Ack is the decoded form of a 24-byte ACK datagram.
type Ack struct {
	DropCount uint32
	TimestampNS int64 // monotonic nanoseconds, reassembled from the two 32-bit halves
	AckStart  uint32
	AckEnd    uint32
}

// Encode writes ack into dst, which must be at least AckLen bytes. Only the low 24
// bits of DropCount are encoded; larger values wrap rather than saturate.
func (a Ack) Encode(dst []byte) {
	drop := a.DropCount & dropCountMask
	binary.BigEndian.PutUint32(dst[0:4], AckSentinel)
	binary.BigEndian.PutUint32(dst[4:8], ackPattern|drop)
	binary.BigEndian.PutUint32(dst[8:12], uint32(uint64(a.TimestampNS)>>32))
	binary.BigEndian.PutUint32(dst[12:16], uint32(uint64(a.TimestampNS)))
	binary.BigEndian.PutUint32(dst[16:20], a.AckStart)
	binary.BigEndian.PutUint32(dst[20:24], a.AckEnd)
}

// DecodeAck decodes a datagram already known (via Classify) to be an ACK. raw must
// be at least AckLen bytes.
func DecodeAck(raw []byte) Ack {
	drop := binary.BigEndian.Uint32(raw[4:8]) & dropCountMask
	hi := uint64(binary.BigEndian.Uint32(raw[8:12]))
	lo := uint64(binary.BigEndian.Uint32(raw[12:16]))
	return Ack{
		DropCount:   drop,
		TimestampNS: int64(hi<<32 | lo),
		AckStart:    binary.BigEndian.Uint32(raw[16:20]),
		AckEnd:      binary.BigEndian.Uint32(raw[20:24]),
	}
}
