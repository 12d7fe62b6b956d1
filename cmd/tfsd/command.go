package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/tfstunnel/pkg/endpoint"
)

// Command returns the root CLI command, per §6's external-interface surface: role
// (listen/connect), peer address, tun device name, target rate, ack period, the
// ingress-simulation congestion rate, verbosity, and per-direction enable flags.
func Command() *cobra.Command {
	cfg := endpoint.DefaultConfig()
	var (
		peer    string
		verbose bool
	)

	c := &cobra.Command{
		Use:   "tfsd",
		Short: "Run a traffic-flow-security tunnel endpoint",
		Long: "tfsd runs one end of a point-to-point IP tunnel that emits outer UDP\n" +
			"datagrams at a constant rate, independent of inner traffic shape.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Listen = peer == ""
			cfg.Peer = peer
			return run(cmd.Context(), cfg, verbose)
		},
	}

	flags := c.Flags()
	flags.StringVar(&peer, "peer", "", "remote host:port to connect to (omit to listen for a peer instead)")
	flags.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "local UDP address to bind")
	flags.StringVar(&cfg.TunName, "tun", cfg.TunName, "TUN device name (may contain a %d template)")
	flags.Float64Var(&cfg.TargetBps, "rate", cfg.TargetBps, "target constant tunnel rate, in bits per second")
	flags.DurationVar(&cfg.AckPeriod, "ack-period", cfg.AckPeriod, "interval between ACK reports")
	flags.Float64Var(&cfg.CongestBps, "congest-rate", 0, "simulate ingress congestion by capping the receive rate to this many bits per second (0 disables)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flags.BoolVar(&cfg.EnableIngress, "ingress", cfg.EnableIngress, "enable the tun-to-udp direction")
	flags.BoolVar(&cfg.EnableEgress, "egress", cfg.EnableEgress, "enable the udp-to-tun direction")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	return c
}

func run(ctx context.Context, cfg endpoint.Config, verbose bool) error {
	logger := logrus.StandardLogger()
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
	ctx = dgroup.WithGoroutineName(ctx, "/tfsd")

	if !cfg.Listen && cfg.Peer == "" {
		return fmt.Errorf("tfsd: --peer is required in connect mode")
	}

	ep, err := endpoint.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer ep.Close()

	dlog.Infof(ctx, "tfsd starting: listen=%v bind=%s peer=%q tun=%s", cfg.Listen, cfg.BindAddr, cfg.Peer, cfg.TunName)
	return ep.Run(ctx)
}
