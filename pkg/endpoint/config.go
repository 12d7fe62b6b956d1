package endpoint

import "time"

// Config is the process-wide configuration the CLI layer builds from flags (§6).
type Config struct {
	// Listen is true when this process waits for a peer to appear (the peer's
	// address is learned from the first received datagram). When false, Peer
	// must name the remote host:port to connect to.
	Listen bool
	Peer   string

	// BindAddr is the local UDP address to listen on, e.g. ":4500".
	BindAddr string

	// TunName is the TUN device name to allocate (may contain a "%d" template).
	TunName string

	// TargetBps is the target constant tunnel rate, in bits per second, from
	// which the pacer's target_pps is derived (TargetBps / (OuterMTU*8)).
	TargetBps float64

	// AckPeriod is how often the ack-sender reports the egress sequence window.
	AckPeriod time.Duration

	// CongestBps, if > 0, simulates ingress congestion by capping the received
	// outer-datagram rate via pkg/pacer's sliding-window rate limiter (§4.6).
	CongestBps float64

	// EnableIngress/EnableEgress gate the tun-reader+pacer/packer and
	// udp-reader-delivery+interface-writer halves respectively, so a single
	// process can run traffic in one direction only.
	EnableIngress bool
	EnableEgress  bool

	// MetricsAddr, if non-empty, serves Prometheus metrics at this address
	// (typically loopback-only, e.g. "127.0.0.1:9000").
	MetricsAddr string

	// InnerPoolSize/OuterPoolSize size the buffer pools; QueueSize sizes InQ/OutQ.
	InnerPoolSize int
	OuterPoolSize int
	QueueSize     int
}

// DefaultConfig returns a Config with the bounded-queue/pool sizes from §3 and both
// directions enabled.
func DefaultConfig() Config {
	return Config{
		BindAddr:      ":4500",
		TunName:       "tfs%d",
		TargetBps:     10_000_000,
		AckPeriod:     1 * time.Second,
		EnableIngress: true,
		EnableEgress:  true,
		InnerPoolSize: 64,
		OuterPoolSize: 64,
		QueueSize:     32,
	}
}
