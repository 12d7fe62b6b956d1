// Package queue implements the bounded queue (Q) shared between producer and
// consumer workers on each side of the tunnel: InQ on ingress, OutQ on egress.
//
// It is backed by a buffered channel rather than a hand-rolled monitor (mutex plus
// two condition variables) because a Go buffered channel already gives exactly the
// semantics the queue needs: a blocking send/receive pair, and — via select with a
// default case — a non-blocking try-pop. This is also how the teacher codebase
// models its own internal queues (channels of *Packet), so it's the idiomatic
// choice here too.
package queue

// MaxQSize is the default capacity of a bounded queue.
const MaxQSize = 32

// Queue is a bounded FIFO of T. Zero value is not usable; construct with New.
type Queue[T any] struct {
	ch chan T
}

// New returns a Queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Pop blocks until an item is available and returns it, or returns ok=false if the
// queue was closed and drained.
func (q *Queue[T]) Pop() (v T, ok bool) {
	v, ok = <-q.ch
	return v, ok
}

// TryPop returns an item if one is immediately available without blocking.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	select {
	case v, ok = <-q.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Push blocks until there is room, then enqueues v.
func (q *Queue[T]) Push(v T) {
	q.ch <- v
}

// TryPush enqueues v if there is room without blocking, reporting whether it did.
func (q *Queue[T]) TryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap reports the queue's capacity.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Close closes the underlying channel; Pop drains remaining items and then returns
// ok=false. Only the producer side should close.
func (q *Queue[T]) Close() { close(q.ch) }
