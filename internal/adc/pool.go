package adc

import (
	"sync/atomic"
)

// AllocMode selects which side of the pool an allocation comes from.
type AllocMode int

const (
	// AllocWrite takes a buffer from the free list to become a new
	// transfer target. Producer context only.
	AllocWrite AllocMode = iota

	// AllocRead dequeues the oldest buffer from the ready queue.
	// Consumer context only.
	AllocRead
)

// spscRing is a lock-free single-producer/single-consumer ring of buffer
// pointers. One goroutine owns the tail (push), another owns the head
// (pop); the atomic cursors publish slot contents between them. Sized to
// a power of two so wrap-around is a mask.
type spscRing struct {
	slots []*SampleBuffer
	mask  uint64
	head  atomic.Uint64 // pop cursor
	tail  atomic.Uint64 // push cursor
}

func newSPSCRing(capacity int) *spscRing {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &spscRing{
		slots: make([]*SampleBuffer, size),
		mask:  uint64(size - 1),
	}
}

// push appends a buffer. Returns false when the ring is full. Only the
// producing side may call this.
func (r *spscRing) push(b *SampleBuffer) bool {
	t := r.tail.Load()
	if t-r.head.Load() == uint64(len(r.slots)) {
		return false
	}
	r.slots[t&r.mask] = b
	r.tail.Store(t + 1)
	return true
}

// pop removes the oldest buffer, or returns nil when empty. Only the
// consuming side may call this.
func (r *spscRing) pop() *SampleBuffer {
	h := r.head.Load()
	if h == r.tail.Load() {
		return nil
	}
	b := r.slots[h&r.mask]
	r.head.Store(h + 1)
	return b
}

// empty reports whether the ring currently holds no buffers. Safe from
// either side; the answer is a snapshot.
func (r *spscRing) empty() bool {
	return r.head.Load() == r.tail.Load()
}

// Pool owns a fixed set of sample buffers and arbitrates their movement
// between the producer (the driver's completion callback) and the
// consumer (the application).
//
// Two rings implement the exchange: the producer pops free and pushes
// ready, the consumer pops ready and pushes free. Each side only ever
// touches its own end of each ring, so the producer never takes a lock
// and never blocks.
type Pool struct {
	buffers []SampleBuffer
	storage []Sample
	free    *spscRing
	ready   *spscRing

	samples  int
	channels int

	// invalidate is the driver's cache maintenance hook, set by the
	// engine at configuration time. May be nil.
	invalidate func([]Sample)
}

// NewPool allocates a pool of nBuffers buffers, each holding
// nSamples×nChannels samples, with every buffer on the free list.
func NewPool(nSamples, nChannels, nBuffers int) (*Pool, error) {
	if nSamples <= 0 || nChannels <= 0 || nBuffers < 2 {
		return nil, ErrInvalidConfig
	}

	size := nSamples * nChannels
	p := &Pool{
		buffers:  make([]SampleBuffer, nBuffers),
		storage:  make([]Sample, size*nBuffers),
		free:     newSPSCRing(nBuffers),
		ready:    newSPSCRing(nBuffers),
		samples:  nSamples,
		channels: nChannels,
	}

	for i := range p.buffers {
		b := &p.buffers[i]
		b.pool = p
		b.data = p.storage[i*size : (i+1)*size]
		b.channels = nChannels
		b.state = ownFree
		p.free.push(b)
	}
	return p, nil
}

// Alloc hands out a buffer. In AllocWrite mode it returns a fresh write
// target from the free list, or nil when the pool is exhausted; the
// caller (the completion handler) then recycles its in-flight buffer. In
// AllocRead mode it dequeues the oldest ready buffer, or nil when none is
// queued; blocking until one arrives is the engine's job.
func (p *Pool) Alloc(mode AllocMode) *SampleBuffer {
	switch mode {
	case AllocWrite:
		b := p.free.pop()
		if b == nil {
			return nil
		}
		b.reset()
		b.state = ownWriteTarget
		return b
	case AllocRead:
		b := p.ready.pop()
		if b == nil {
			return nil
		}
		b.state = ownReadTarget
		return b
	}
	return nil
}

// Writable reports whether at least one buffer is on the free list.
func (p *Pool) Writable() bool {
	return !p.free.empty()
}

// Readable reports whether the ready queue holds at least one buffer.
func (p *Pool) Readable() bool {
	return !p.ready.empty()
}

// Flush drains the ready queue back to the free list, discarding queued
// but unread data. Consumer context only; used to resynchronize after a
// detected discontinuity.
func (p *Pool) Flush() {
	for {
		b := p.ready.pop()
		if b == nil {
			return
		}
		b.state = ownFree
		p.free.push(b)
	}
}

// Buffers returns the pool capacity in buffers.
func (p *Pool) Buffers() int {
	return len(p.buffers)
}

// BufferSize returns the per-buffer capacity in samples (all channels).
func (p *Pool) BufferSize() int {
	return p.samples * p.channels
}

// Channels returns the channel count the pool was sized for.
func (p *Pool) Channels() int {
	return p.channels
}

// enqueueReady is the producer-side handoff used by Release.
func (p *Pool) enqueueReady(b *SampleBuffer) {
	p.ready.push(b)
}

// enqueueFree is the consumer-side return path used by Release.
func (p *Pool) enqueueFree(b *SampleBuffer) {
	p.free.push(b)
}
