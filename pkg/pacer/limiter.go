package pacer

import "time"

// RateLimiter is the §4.6 receive-side test hook: a sliding window over the last N
// received outer datagrams' (bytes, timestamp), used to simulate ingress congestion
// by dropping datagrams once the effective Bps over the window exceeds a cap.
//
// Grounded on original_source/iptfs/util.py's Limit class: a ring of (size,
// timestamp) pairs, a running total, and a rate comparison against the oldest slot
// in the ring.
type RateLimiter struct {
	capBps float64
	window []slot
	idx    int
	total  int
	drops  int
}

type slot struct {
	size int
	at   time.Time
}

// NewRateLimiter returns a limiter that drops datagrams once the effective send
// rate over the last windowSize datagrams exceeds capBitsPerSecond.
func NewRateLimiter(capBitsPerSecond float64, windowSize int) *RateLimiter {
	if windowSize < 1 {
		windowSize = 1
	}
	return &RateLimiter{
		capBps: capBitsPerSecond / 8,
		window: make([]slot, windowSize),
	}
}

// Admit records a received datagram of n bytes and reports whether it should be
// dropped to hold the simulated rate at or below the configured cap.
func (r *RateLimiter) Admit(n int) bool {
	now := time.Now()
	oldest := r.window[r.idx]
	newTotal := r.total + n - oldest.size

	var rate float64
	if !oldest.at.IsZero() {
		delta := now.Sub(oldest.at).Seconds()
		if delta > 0 {
			rate = float64(newTotal) / delta
		}
	}

	if rate > r.capBps {
		r.drops++
		return true
	}

	r.total = newTotal
	r.window[r.idx] = slot{size: n, at: now}
	r.idx = (r.idx + 1) % len(r.window)
	return false
}

// Drops returns the number of datagrams dropped by this limiter so far.
func (r *RateLimiter) Drops() int { return r.drops }
