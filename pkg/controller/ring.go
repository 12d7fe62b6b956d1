// Package controller implements the ACK sender and the AIMD rate controller of
// §4.4: the goroutine that periodically reports the egress sequence window back to
// the peer, and the receive-side logic that turns incoming ACKs into pacer
// rate-change calls.
package controller

// RunningAverage is a fixed-size ring buffer that re-aggregates on every insert and
// reports when a full run has completed.
//
// Grounded on original_source/iptfs/util.py's RunningAverage: a runlen-sized slice
// of values, a wrapping index, a tick counter, and a pluggable aggregation function
// (avgf there defaults to a mean; here it is always AvgWithMin1, see below).
type RunningAverage struct {
	values []int
	index  int
	ticks  int
	value  int
	aggr   func([]int) int
}

// NewRunningAverage returns a ring of runlen slots, all initialized to 0, using aggr
// to recompute Value on every Add.
func NewRunningAverage(runlen int, aggr func([]int) int) *RunningAverage {
	r := &RunningAverage{
		values: make([]int, runlen),
		aggr:   aggr,
	}
	r.value = aggr(r.values)
	return r
}

// Add records a new observation, overwriting the oldest slot, and reports whether
// the ring just completed a full run (index wrapped back to 0).
func (r *RunningAverage) Add(v int) (tick bool) {
	r.values[r.index] = v
	r.index++
	if r.index == len(r.values) {
		r.ticks++
		r.index = 0
		tick = true
	}
	r.value = r.aggr(r.values)
	return tick
}

// Value returns the current aggregate.
func (r *RunningAverage) Value() int { return r.value }

// AvgWithMin1 implements §3's average = max(any-nonzero ? 1 : 0, sum // runlen): the
// mean of every slot, floor-divided, except that a ring holding any nonzero value at
// all is never allowed to average down to 0 — which matters once this ring carries
// extrapolated values (§4.4's missed-ACK handling injects pps_avg/4, which can be a
// small nonzero sample). A single dropped report should still register as *some*
// signal rather than disappear under integer division.
func AvgWithMin1(values []int) int {
	total := 0
	nonzero := false
	for _, v := range values {
		total += v
		if v != 0 {
			nonzero = true
		}
	}
	avg := total / len(values)
	if nonzero && avg < 1 {
		avg = 1
	}
	return avg
}
