// Package record drains a streaming engine into a byte-oriented ring
// buffer, decoupling window-sized acquisition from consumers that want a
// continuous little-endian PCM stream (file writers, network senders).
package record

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/adcstream/internal/adc"
)

// drainPollInterval bounds how long the drain loop sleeps when the
// engine has no data queued.
const drainPollInterval = time.Millisecond

// Source is the slice of the engine the recorder needs.
type Source interface {
	Available() bool
	Read() *adc.SampleBuffer
}

// Stats counts what passed through the recorder since the last Reset.
type Stats struct {
	Windows      uint64 // acquisition windows drained
	Samples      uint64 // samples written to the ring
	Gaps         uint64 // windows flagged discontinuous
	DroppedBytes uint64 // bytes lost because the ring was full
}

// Recorder copies sample windows from a source into a ring buffer as
// little-endian 16-bit PCM. A single drain goroutine is the only reader
// of the source, so the engine's single-consumer contract holds.
type Recorder struct {
	src    Source
	buffer *ringbuffer.RingBuffer
	logger adc.Logger

	mu             sync.Mutex
	stats          Stats
	warningCounter int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder creates a recorder whose ring holds duration worth of
// samples at the given rate and channel count.
func NewRecorder(src Source, sampleRate uint32, channels int, duration time.Duration) *Recorder {
	return NewRecorderWithDeps(src, sampleRate, channels, duration, &adc.StandardLogger{})
}

// NewRecorderWithDeps creates a recorder with a custom logger.
func NewRecorderWithDeps(src Source, sampleRate uint32, channels int, duration time.Duration, logger adc.Logger) *Recorder {
	// 2 bytes per sample per channel
	bytesPerSecond := int(sampleRate) * channels * 2
	bufferSize := bytesPerSecond * int(duration.Seconds())
	if bufferSize <= 0 {
		bufferSize = bytesPerSecond
	}

	return &Recorder{
		src:    src,
		buffer: ringbuffer.New(bufferSize),
		logger: logger,
	}
}

// Start launches the drain goroutine. It runs until the context is
// cancelled or Stop is called.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return errors.New("recorder already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.drain(ctx, r.done)
	r.logger.Info("⏺️ Recorder started, ring capacity %d bytes", r.buffer.Capacity())
	return nil
}

// Stop cancels the drain goroutine and waits for it to exit.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info("⏹️ Recorder stopped")
}

func (r *Recorder) drain(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !r.src.Available() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(drainPollInterval):
			}
			continue
		}

		buf := r.src.Read()
		r.ingest(buf)
		buf.Release()
	}
}

// ingest encodes one window and pushes it into the ring.
func (r *Recorder) ingest(buf *adc.SampleBuffer) {
	data := buf.Data()
	encoded := make([]byte, len(data)*2)
	for i, s := range data {
		binary.LittleEndian.PutUint16(encoded[i*2:], uint16(s))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Windows++
	if buf.GetFlags(adc.FlagDiscontinuous) {
		r.stats.Gaps++
		r.logger.Warn("⚠️ Discontinuous window at %v, %d gaps so far",
			buf.Timestamp(), r.stats.Gaps)
	}

	// Warn when the ring nears capacity, throttled to avoid flooding
	const warningCapacityThreshold = 0.9
	capacityUsed := float64(r.buffer.Length()) / float64(r.buffer.Capacity())
	if capacityUsed > warningCapacityThreshold {
		r.warningCounter++
		if r.warningCounter%32 == 1 {
			r.logger.Warn("⚠️ Recorder ring is %.0f%% full (%d/%d bytes)",
				capacityUsed*100, r.buffer.Length(), r.buffer.Capacity())
		}
	}

	n, err := r.buffer.Write(encoded)
	r.stats.Samples += uint64(n / 2)
	if n < len(encoded) {
		r.stats.DroppedBytes += uint64(len(encoded) - n)
	}
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) &&
		!errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		r.logger.Error("❌ Unexpected error writing to ring: %v", err)
	}
}

// Read copies up to len(p) bytes of recorded PCM out of the ring.
func (r *Recorder) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buffer.Length() == 0 {
		return 0, nil
	}
	return r.buffer.Read(p)
}

// Buffered returns the number of PCM bytes waiting in the ring.
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.Length()
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Reset discards buffered data and zeroes the counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer.Reset()
	r.stats = Stats{}
	r.warningCounter = 0
}
