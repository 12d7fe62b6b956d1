package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	r := New()
	mfs, err := r.reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"tfstunnel_outer_datagrams_sent_total",
		"tfstunnel_outer_datagrams_received_total",
		"tfstunnel_acks_sent_total",
		"tfstunnel_acks_received_total",
		"tfstunnel_drop_count",
		"tfstunnel_malformed_datagrams_total",
		"tfstunnel_current_pps",
		"tfstunnel_inq_depth",
		"tfstunnel_outq_depth",
		"tfstunnel_ack_gap_seconds",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestServeExposesMetricsEndpoint(t *testing.T) {
	r := New()
	r.OuterSent.Add(3)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve(ctx, "127.0.0.1:0") }()

	var addr string
	require.Eventually(t, func() bool {
		addr = r.addr()
		return addr != ""
	}, time.Second, time.Millisecond, "server did not start listening")

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tfstunnel_outer_datagrams_sent_total 3")
	assert.True(t, strings.Contains(string(body), "tfstunnel_"))

	cancel()
	require.NoError(t, <-errCh)
}
