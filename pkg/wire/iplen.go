package wire

import "encoding/binary"

// IPv4TotalLength reads the IPv4 Total Length field from p, which must start at the
// packet's version/IHL byte and have at least 4 bytes available.
func IPv4TotalLength(p []byte) int {
	return int(binary.BigEndian.Uint16(p[2:4]))
}

// IPv6TotalLength reads the IPv6 Payload Length field from p (offset 4, 2 bytes) and
// adds the fixed 40-byte base header length. Extension headers are not parsed
// (spec non-goal); this is the base-header length only.
func IPv6TotalLength(p []byte) int {
	return 40 + int(binary.BigEndian.Uint16(p[4:6]))
}

// IPv4LengthFieldEnd is the offset (from the start of the IP packet) at which the
// Total Length field ends; a prefix shorter than this can't be measured yet.
const IPv4LengthFieldEnd = 4

// IPv6LengthFieldEnd is the offset (from the start of the IP packet) at which the
// Payload Length field ends.
const IPv6LengthFieldEnd = 6
