// Package pacer implements the constant-rate clock (§4.5) that drives the ingress
// packer, and the sliding-window rate limiter (§4.6) used as an egress test hook.
//
// Grounded on original_source/iptfs/util.py's PeriodicPPS: a monotonic timestamp, a
// pps-derived interval guarded by a lock, Wait() that sleeps to the next deadline (or
// re-anchors and logs on overrun), and ChangeRate() that updates the interval without
// resetting the pending deadline.
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
)

// Pacer is the per-direction constant-rate clock (P in §3).
type Pacer struct {
	mu         sync.Mutex
	targetPPS  int
	currentPPS int
	interval   time.Duration
	timestamp  time.Time // time of the last tick
}

// New returns a Pacer ticking at targetPPS, which is also its initial current rate
// and its ceiling (§3: 1 <= current_pps <= target_pps).
func New(targetPPS int) *Pacer {
	if targetPPS < 1 {
		targetPPS = 1
	}
	return &Pacer{
		targetPPS:  targetPPS,
		currentPPS: targetPPS,
		interval:   time.Second / time.Duration(targetPPS),
		timestamp:  time.Now(),
	}
}

// TargetPPS returns the configured ceiling.
func (p *Pacer) TargetPPS() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetPPS
}

// CurrentPPS returns the pacer's current rate.
func (p *Pacer) CurrentPPS() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPPS
}

// Wait blocks until interval has elapsed since the previous tick, then records the
// new tick time. If more than interval has already elapsed (the caller is running
// behind), it re-anchors to now, logs the overrun, and returns immediately — it
// never sleeps negative time or bursts to catch up.
func (p *Pacer) Wait(ctx context.Context) {
	p.mu.Lock()
	interval := p.interval
	last := p.timestamp
	p.mu.Unlock()

	now := time.Now()
	waitFor := interval - now.Sub(last)
	if waitFor <= 0 {
		if waitFor < 0 {
			dlog.Debugf(ctx, "pacer: overran periodic tick by %s", -waitFor)
		}
		p.mu.Lock()
		p.timestamp = now
		p.mu.Unlock()
		return
	}

	select {
	case <-time.After(waitFor):
	case <-ctx.Done():
		return
	}

	p.mu.Lock()
	p.timestamp = time.Now()
	p.mu.Unlock()
}

// ChangeRate atomically updates the current pps (clamped to [1, targetPPS]) and
// recomputes the interval, without resetting the pending tick timestamp — so the
// very next Wait already uses the new rate.
func (p *Pacer) ChangeRate(newPPS int) {
	if newPPS < 1 {
		newPPS = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if newPPS > p.targetPPS {
		newPPS = p.targetPPS
	}
	if newPPS == p.currentPPS {
		return
	}
	p.currentPPS = newPPS
	p.interval = time.Second / time.Duration(newPPS)
}
