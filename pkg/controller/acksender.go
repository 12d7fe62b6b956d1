package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/tfstunnel/pkg/reassembler"
	"github.com/datawire/tfstunnel/pkg/wire"
)

// warmup is how long the ack-sender waits after start before its first tick, so it
// never reports on a window that hasn't seen any traffic yet (§4.4).
const warmup = 3 * time.Second

// AckSender periodically reports the egress sequence window back to the peer.
type AckSender struct {
	seq    *reassembler.SeqState
	conn   io.Writer
	sendMu *sync.Mutex
	period time.Duration
	epoch  time.Time
}

// NewAckSender returns an AckSender that reports seq's window every period,
// stamping each ACK with nanoseconds elapsed since epoch (a monotonic reference
// captured once at process start).
func NewAckSender(seq *reassembler.SeqState, conn io.Writer, sendMu *sync.Mutex, period time.Duration, epoch time.Time) *AckSender {
	return &AckSender{seq: seq, conn: conn, sendMu: sendMu, period: period, epoch: epoch}
}

// Run blocks, ticking every period after the initial warm-up delay, until ctx is
// canceled. It is meant to be run as its own dgroup worker.
func (a *AckSender) Run(ctx context.Context) error {
	select {
	case <-time.After(warmup):
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *AckSender) tick(ctx context.Context) {
	start, end, drop, ok := a.seq.Snapshot()
	if !ok {
		return
	}
	if drop > wire.MaxDropCount {
		drop = wire.MaxDropCount
	}

	ack := wire.Ack{
		DropCount:   drop,
		TimestampNS: time.Since(a.epoch).Nanoseconds(),
		AckStart:    start,
		AckEnd:      end,
	}
	buf := make([]byte, wire.AckLen)
	ack.Encode(buf)

	a.sendMu.Lock()
	n, err := a.conn.Write(buf)
	a.sendMu.Unlock()

	if err != nil {
		dlog.Errorf(ctx, "ack-sender: send failed: %v", err)
	} else if n != len(buf) {
		dlog.Errorf(ctx, "ack-sender: short write (%d of %d bytes)", n, len(buf))
	}
}
