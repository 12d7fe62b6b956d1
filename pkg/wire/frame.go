// Package wire implements the outer datagram framing codec (§4.1) and the in-band
// ACK datagram codec (§4.4). It is pure encode/decode: no I/O, no locking, so it is
// exhaustively unit-testable on its own.
package wire

import "encoding/binary"

const (
	// HeaderLen is the size of the outer datagram's framing header, in bytes.
	HeaderLen = 8

	// OuterMTU is the fixed size of every outer UDP payload.
	OuterMTU = 1500

	// PayloadLen is the number of payload bytes carried after the header in
	// every outer datagram.
	PayloadLen = OuterMTU - HeaderLen
)

// Kind classifies a received outer datagram.
type Kind int

const (
	// KindData is a normal data frame: seq/reserved/offset header over inner
	// packet bytes (and padding).
	KindData Kind = iota
	// KindAck is an in-band ACK datagram (see Ack).
	KindAck
	// KindMalformed is a datagram whose reserved|offset word has the bad-version
	// bit pattern and must be dropped without further processing.
	KindMalformed
)

// ackWordMask and ackWordPattern implement the classification rule of §4.1/§9: the
// 4-byte word at offset 4 (reserved<<16|offset) is reinterpreted as a big-endian
// uint32. If its top two bits are 10, it's malformed (bad version). If they are 01,
// it's an ACK. Otherwise it's a data frame and the low 16 bits are the offset field.
const (
	topTwoBitsMask    = 0xC000_0000
	malformedPattern  = 0x8000_0000
	ackPattern        = 0x4000_0000
)

// Header is the 8-byte outer datagram framing header.
type Header struct {
	Seq      uint32
	Reserved uint16
	Offset   uint16
}

// Encode writes h into dst, which must be at least HeaderLen bytes.
func (h Header) Encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], h.Seq)
	binary.BigEndian.PutUint16(dst[4:6], h.Reserved)
	binary.BigEndian.PutUint16(dst[6:8], h.Offset)
}

// Classify inspects the raw outer datagram header bytes (the first HeaderLen bytes
// of a received datagram) and reports its Kind. For KindData it also decodes the
// Header; for the other kinds the Header return value is the zero value.
func Classify(raw []byte) (Kind, Header) {
	word := binary.BigEndian.Uint32(raw[4:8])
	switch word & topTwoBitsMask {
	case malformedPattern:
		return KindMalformed, Header{}
	case ackPattern:
		return KindAck, Header{}
	default:
		return KindData, Header{
			Seq:      binary.BigEndian.Uint32(raw[0:4]),
			Reserved: binary.BigEndian.Uint16(raw[4:6]),
			Offset:   binary.BigEndian.Uint16(raw[6:8]),
		}
	}
}

// DecodeDataHeader decodes a datagram already known (via Classify) to be a data
// frame.
func DecodeDataHeader(raw []byte) Header {
	return Header{
		Seq:      binary.BigEndian.Uint32(raw[0:4]),
		Reserved: binary.BigEndian.Uint16(raw[4:6]),
		Offset:   binary.BigEndian.Uint16(raw[6:8]),
	}
}

// IsPad reports whether the byte at the start of a datagram's unconsumed payload is
// padding: all inner packets begin with an IPv4 (0x4x) or IPv6 (0x6x) version
// nibble, so a leading 0x00 unambiguously marks padding (§4.1).
func IsPad(b byte) bool { return b&0xF0 == 0x00 }

// IsIPv4 reports whether b is the version nibble of an IPv4 packet.
func IsIPv4(b byte) bool { return b&0xF0 == 0x40 }

// IsIPv6 reports whether b is the version nibble of an IPv6 packet.
func IsIPv6(b byte) bool { return b&0xF0 == 0x60 }
