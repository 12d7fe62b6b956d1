package endpoint

import (
	"errors"
	"net"
	"sync/atomic"
)

var errNoPeerYet = errors.New("endpoint: peer address not yet learned")

// peerWriter is the io.Writer the packer and ack-sender transmit through. In
// connect mode the peer is known up front; in listen mode it is set once the
// udp-reader sees the first inbound datagram (§6: "no handshake; the server
// identifies the peer by the source address of the first UDP datagram").
type peerWriter struct {
	conn *net.UDPConn
	addr atomic.Value // *net.UDPAddr
}

func newPeerWriter(conn *net.UDPConn, addr *net.UDPAddr) *peerWriter {
	w := &peerWriter{conn: conn}
	if addr != nil {
		w.addr.Store(addr)
	}
	return w
}

func (w *peerWriter) Write(p []byte) (int, error) {
	addr, _ := w.addr.Load().(*net.UDPAddr)
	if addr == nil {
		return 0, errNoPeerYet
	}
	return w.conn.WriteToUDP(p, addr)
}

// learn records the peer address if it hasn't been set yet.
func (w *peerWriter) learn(addr *net.UDPAddr) {
	if w.addr.Load() == nil {
		w.addr.Store(addr)
	}
}
