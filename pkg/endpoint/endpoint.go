// Package endpoint wires the core subsystem contract's four components (framing
// codec, ingress packer/pacer, egress reassembler, ACK/rate controller) into the
// module-level state and worker goroutines a running process needs, per §9's note
// that module-level state should be "fields of a single Endpoint value."
package endpoint

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/tfstunnel/pkg/buffer"
	"github.com/datawire/tfstunnel/pkg/controller"
	"github.com/datawire/tfstunnel/pkg/metrics"
	"github.com/datawire/tfstunnel/pkg/pacer"
	"github.com/datawire/tfstunnel/pkg/packer"
	"github.com/datawire/tfstunnel/pkg/queue"
	"github.com/datawire/tfstunnel/pkg/reassembler"
	"github.com/datawire/tfstunnel/pkg/tun"
	"github.com/datawire/tfstunnel/pkg/wire"
)

// Endpoint is one running tunnel instance: one UDP socket, one TUN device, and the
// workers that move packets between them.
type Endpoint struct {
	cfg Config

	conn *net.UDPConn
	peer *peerWriter
	dev  *tun.Device

	sendMu    sync.Mutex
	innerPool *buffer.Pool
	outerPool *buffer.Pool
	inq       *queue.Queue[*buffer.Buffer]

	pacer       *pacer.Pacer
	packer      *packer.Packer
	reassembler *reassembler.Reassembler
	rateCtl     *controller.RateController
	ackSender   *controller.AckSender
	limiter     *pacer.RateLimiter

	metrics *metrics.Registry
}

// New builds an Endpoint from cfg: binds the UDP socket, allocates the TUN device
// (when either direction is enabled), and constructs the pacer/packer/reassembler/
// controller pipeline. It does not start any goroutines; call Run for that.
func New(ctx context.Context, cfg Config) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: resolve bind address %q: %w", cfg.BindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: listen on %q: %w", cfg.BindAddr, err)
	}

	var peerAddr *net.UDPAddr
	if !cfg.Listen {
		peerAddr, err = net.ResolveUDPAddr("udp", cfg.Peer)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("endpoint: resolve peer address %q: %w", cfg.Peer, err)
		}
	}

	var dev *tun.Device
	if cfg.EnableIngress || cfg.EnableEgress {
		dev, err = tun.Open(cfg.TunName)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	e := &Endpoint{
		cfg:       cfg,
		conn:      conn,
		peer:      newPeerWriter(conn, peerAddr),
		dev:       dev,
		innerPool: buffer.NewPool(cfg.InnerPoolSize),
		outerPool: buffer.NewPool(cfg.OuterPoolSize),
		inq:       queue.New[*buffer.Buffer](cfg.QueueSize),
		metrics:   metrics.New(),
	}

	targetPPS := int(cfg.TargetBps / (wire.OuterMTU * 8))
	if targetPPS < 1 {
		targetPPS = 1
	}
	e.pacer = pacer.New(targetPPS)
	e.packer = packer.New(e.inq, e.outerPool, e.peer, &e.sendMu)
	e.reassembler = reassembler.New(cfg.QueueSize)
	e.rateCtl = controller.NewRateController(e.pacer)
	e.ackSender = controller.NewAckSender(e.reassembler.SeqState(), e.peer, &e.sendMu, cfg.AckPeriod, time.Now())

	if cfg.CongestBps > 0 {
		e.limiter = pacer.NewRateLimiter(cfg.CongestBps, 10)
	}

	return e, nil
}

// Run starts every enabled worker under one dgroup.Group and blocks until they all
// exit — normally only on process shutdown (§5: "all worker threads are daemons;
// process exit terminates them").
func (e *Endpoint) Run(ctx context.Context) error {
	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
		SoftShutdownTimeout:  2 * time.Second,
	})

	g.Go("udp-reader", e.udpReader)

	if e.cfg.EnableIngress {
		g.Go("tun-reader", e.tunReader)
		g.Go("pacer-packer", e.pacerLoop)
	}
	if e.cfg.EnableEgress {
		g.Go("interface-writer", e.interfaceWriter)
	}
	g.Go("ack-sender", e.ackSender.Run)

	if e.cfg.MetricsAddr != "" {
		g.Go("metrics", func(ctx context.Context) error {
			return e.metrics.Serve(ctx, e.cfg.MetricsAddr)
		})
	}

	return g.Wait()
}

// Close releases the UDP socket and TUN device.
func (e *Endpoint) Close() error {
	var err error
	if e.dev != nil {
		err = e.dev.Close()
	}
	if cerr := e.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// tunReader reads inner packets off the TUN device and pushes them onto InQ,
// blocking when InQ is full — the natural backpressure path of §5.
func (e *Endpoint) tunReader(ctx context.Context) error {
	for {
		b := e.innerPool.Get()
		n, err := e.dev.Read(b.Grow(buffer.MaxInnerPacket))
		if err != nil {
			b.Release()
			if ctx.Err() != nil {
				return nil
			}
			dlog.Errorf(ctx, "tun-reader: read failed: %v", err)
			continue
		}
		b.ShrinkBack(buffer.MaxInnerPacket - n)
		e.inq.Push(b)
		e.metrics.InQDepth.Set(float64(e.inq.Len()))
	}
}

// pacerLoop drives the packer at the pacer's current rate, once per tick.
func (e *Endpoint) pacerLoop(ctx context.Context) error {
	for {
		e.pacer.Wait(ctx)
		if ctx.Err() != nil {
			return nil
		}
		e.packer.Tick(ctx)
		e.metrics.OuterSent.Inc()
		e.metrics.CurrentPPS.Set(float64(e.pacer.CurrentPPS()))
	}
}

// udpReader is the single reader of the UDP socket: it classifies every received
// datagram, learns the peer address in listen mode, feeds ACKs to the rate
// controller, and feeds data frames to the reassembler.
func (e *Endpoint) udpReader(ctx context.Context) error {
	var lastAck time.Time
	for {
		b := e.outerPool.Get()
		n, addr, err := e.conn.ReadFromUDP(b.Grow(wire.OuterMTU))
		if err != nil {
			b.Release()
			if ctx.Err() != nil {
				return nil
			}
			dlog.Errorf(ctx, "udp-reader: recv failed: %v", err)
			continue
		}
		if e.cfg.Listen {
			e.peer.learn(addr)
		}
		e.metrics.OuterReceived.Inc()

		if n < wire.HeaderLen {
			b.Release()
			continue
		}
		if e.limiter != nil && e.limiter.Admit(n) {
			b.Release()
			continue
		}

		kind, hdr := wire.Classify(b.Bytes())
		switch kind {
		case wire.KindMalformed:
			e.metrics.MalformedDrop.Inc()
			b.Release()

		case wire.KindAck:
			if n < wire.AckLen {
				b.Release()
				continue
			}
			ack := wire.DecodeAck(b.Bytes())
			e.rateCtl.Feed(ack)
			if !lastAck.IsZero() {
				e.metrics.AckGapSeconds.Observe(time.Since(lastAck).Seconds())
			}
			lastAck = time.Now()
			e.metrics.AcksReceived.Inc()
			b.Release()

		default:
			if n != wire.OuterMTU {
				e.metrics.MalformedDrop.Inc()
				b.Release()
				continue
			}
			e.reassembler.Feed(hdr, b)
			e.metrics.DropCount.Set(float64(e.reassembler.MalformedCount()))
			b.Release()
		}
	}
}

// interfaceWriter delivers reassembled inner packets to the TUN device in order.
func (e *Endpoint) interfaceWriter(ctx context.Context) error {
	for {
		chain, ok := e.reassembler.OutQ().Pop()
		if !ok {
			return nil
		}
		data := chain.Bytes()
		if _, err := e.dev.Write(data); err != nil {
			dlog.Errorf(ctx, "interface-writer: tun write failed: %v", err)
		}
		chain.Release()
		e.metrics.OutQDepth.Set(float64(e.reassembler.OutQ().Len()))
	}
}
