package controller

import (
	"math"

	"github.com/datawire/tfstunnel/pkg/pacer"
	"github.com/datawire/tfstunnel/pkg/wire"
)

// missedAckWindowNS and missedAckGraceNS implement §4.4's missed-ACK estimate:
// missed = (ns + 100ms - last_ack_ns) // 1s - 1.
const (
	missedAckGraceNS  = 100_000_000
	missedAckWindowNS = 1_000_000_000
)

// RateController turns received ACKs into pacer rate-change calls, per §4.4. It has
// no goroutine of its own: per §5's concurrency model, it runs synchronously inside
// the udp-reader right after an incoming datagram is classified as an ACK.
type RateController struct {
	pacer     *pacer.Pacer
	ppsAvg    *RunningAverage
	dropAvg   *RunningAverage
	lastAckNS int64
}

// NewRateController returns a controller driving p's rate.
func NewRateController(p *pacer.Pacer) *RateController {
	return &RateController{
		pacer:   p,
		ppsAvg:  NewRunningAverage(5, AvgWithMin1),
		dropAvg: NewRunningAverage(5, AvgWithMin1),
	}
}

// Feed processes one received ACK: it extrapolates for any ACKs that appear to have
// been lost since the last one, then feeds this ACK's own window into the running
// averages, applying the AIMD update whenever a ring completes a run.
func (c *RateController) Feed(ack wire.Ack) {
	ns := ack.TimestampNS

	if c.lastAckNS != 0 {
		missed := (ns+missedAckGraceNS-c.lastAckNS)/missedAckWindowNS - 1
		for i := int64(0); i < missed; i++ {
			ppsSample := c.ppsAvg.Value()
			dropSample := ppsSample / 4
			tick := c.ppsAvg.Add(ppsSample)
			c.dropAvg.Add(dropSample)
			c.applyTick(tick)
		}
	}
	c.lastAckNS = ns

	runlen := int(ack.AckEnd - ack.AckStart)
	tick := c.ppsAvg.Add(runlen)
	c.dropAvg.Add(int(ack.DropCount))
	c.applyTick(tick)
}

// applyTick implements §4.4's AIMD update: additive increase by one pps per good
// run (drop_avg == 0), otherwise a multiplicative decrease proportional to the
// observed drop ratio.
func (c *RateController) applyTick(tick bool) {
	if !tick {
		return
	}

	ppsAvgVal := c.ppsAvg.Value()
	dropAvgVal := c.dropAvg.Value()
	current := c.pacer.CurrentPPS()
	target := c.pacer.TargetPPS()

	var newPPS int
	if dropAvgVal == 0 && current < target {
		newPPS = current + 1
		if newPPS > target {
			newPPS = target
		}
	} else {
		dropPct := 0
		if ppsAvgVal > 0 {
			dropPct = dropAvgVal * 25 / ppsAvgVal
		}
		if dropPct < 1 {
			dropPct = 1
		}
		newPPS = int(math.Round(float64(current) * float64(100-dropPct) / 100))
		if newPPS < 1 {
			newPPS = 1
		}
	}

	c.pacer.ChangeRate(newPPS)
}
