package buffer

// Pool is a fixed-size free list of buffers. Buffers are allocated once, at pool
// creation, and then cycled between the free list and whatever work queue currently
// holds them; none are ever freed while the pool is in use.
//
// Get returns a buffer with a reference count of one, representing the caller's own
// ownership; the caller must Release it exactly once it is done with it (directly, or
// indirectly by letting every iov.Chain that Retained it release in turn).
type Pool struct {
	free chan *Buffer
}

// NewPool allocates n buffers up front and returns a Pool that owns them.
func NewPool(n int) *Pool {
	p := &Pool{free: make(chan *Buffer, n)}
	for i := 0; i < n; i++ {
		p.free <- newBuffer(p)
	}
	return p
}

// Get blocks until a buffer is available, then returns it with a fresh, empty window
// and a reference count of one.
func (p *Pool) Get() *Buffer {
	b := <-p.free
	b.Reset()
	b.refs = 1
	return b
}

// TryGet returns a buffer if one is immediately available, or nil if the pool is
// momentarily exhausted.
func (p *Pool) TryGet() *Buffer {
	select {
	case b := <-p.free:
		b.Reset()
		b.refs = 1
		return b
	default:
		return nil
	}
}

func (p *Pool) put(b *Buffer) {
	b.Reset()
	p.free <- b
}

// Len reports the number of buffers currently sitting in the free list.
func (p *Pool) Len() int { return len(p.free) }

// Cap reports the pool's total buffer count.
func (p *Pool) Cap() int { return cap(p.free) }
