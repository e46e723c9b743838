package adc

import (
	"time"
)

// Flags holds the status bits carried by a SampleBuffer. Flags persist
// until the buffer is reused as a write target.
type Flags uint8

const (
	// FlagDiscontinuous marks a gap in the sample stream: the consumer
	// fell behind and at least one window between the previously queued
	// buffer and this one was overwritten before delivery.
	FlagDiscontinuous Flags = 1 << iota

	// FlagInterleaved marks a multi-channel buffer whose samples are
	// stored channel-interleaved; consumers must stride by Channels().
	FlagInterleaved
)

// ownership tracks who may touch a buffer at any given moment.
type ownership int

const (
	ownFree ownership = iota
	ownWriteTarget
	ownReady
	ownReadTarget
)

// SampleBuffer is one acquisition window's worth of samples plus its
// metadata. Buffers are owned by their Pool for the pool's whole
// lifetime; Release returns them rather than destroying them.
type SampleBuffer struct {
	pool     *Pool
	data     []Sample
	channels int
	flags    Flags
	stamp    time.Time
	state    ownership
}

// Data returns the raw sample storage. The producer may write it only
// while the buffer is a write target; consumers treat it as read-only.
func (b *SampleBuffer) Data() []Sample {
	return b.data
}

// Size returns the buffer capacity in samples (all channels).
func (b *SampleBuffer) Size() int {
	return len(b.data)
}

// Channels returns the channel stride of the buffer.
func (b *SampleBuffer) Channels() int {
	return b.channels
}

// Timestamp returns the acquisition completion time.
func (b *SampleBuffer) Timestamp() time.Time {
	return b.stamp
}

// SetTimestamp records the acquisition completion time.
func (b *SampleBuffer) SetTimestamp(t time.Time) {
	b.stamp = t
}

// SetFlags sets the given status bits.
func (b *SampleBuffer) SetFlags(mask Flags) {
	b.flags |= mask
}

// GetFlags reports whether any of the given status bits are set.
func (b *SampleBuffer) GetFlags(mask Flags) bool {
	return b.flags&mask != 0
}

// Invalidate discards any cached view of the underlying memory. Must be
// called before reading data the transfer wrote bypassing the cache.
func (b *SampleBuffer) Invalidate() {
	if b.pool != nil && b.pool.invalidate != nil {
		b.pool.invalidate(b.data)
	}
}

// Release returns the buffer to its owning pool. A write target moves to
// the ready queue, a read target or queued buffer returns to the free
// list. Releasing a free buffer is a no-op.
func (b *SampleBuffer) Release() {
	if b.pool == nil {
		return
	}
	switch b.state {
	case ownWriteTarget:
		b.state = ownReady
		b.pool.enqueueReady(b)
	case ownReady, ownReadTarget:
		b.state = ownFree
		b.pool.enqueueFree(b)
	case ownFree:
		// Already home.
	}
}

// reset prepares the buffer for reuse as a write target.
func (b *SampleBuffer) reset() {
	b.flags = 0
	b.stamp = time.Time{}
}

// emptyBuffer is the sentinel returned by reads on an unconfigured
// engine. It has no pool, so Release on it is harmless.
var emptyBuffer = &SampleBuffer{}
