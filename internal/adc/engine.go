package adc

import (
	"fmt"
	"sync"
	"time"
)

// readPollInterval bounds the cooperative wait in Read when no wake
// notification arrives, e.g. after the trigger was stopped.
const readPollInterval = time.Millisecond

// Engine streams conversion results from one acquisition unit into a
// buffer pool using double-buffered transfers.
//
// Two execution contexts touch an engine: the application context calls
// the lifecycle and read operations, and the driver's completion
// callback runs handleCompletion. The handler never takes the engine
// lock; it only touches the two in-flight target slots and the
// producer-side ends of the pool, both of which the application context
// leaves alone while the trigger runs.
type Engine struct {
	hal      HAL
	logger   Logger
	pins     []Pin
	explicit UnitID

	mu      sync.Mutex
	unit    UnitID
	drv     Driver
	cfg     Config
	pool    *Pool
	dmabuf  [2]*SampleBuffer
	running bool

	// wake is pulsed by the completion handler so blocked readers can
	// re-check the ready queue without spinning hard.
	wake chan struct{}
}

// NewEngine creates an engine sampling the given pins with default
// dependencies. The unit is resolved from the pins at configuration
// time unless SetUnit pins it down first.
func NewEngine(hal HAL, pins ...Pin) *Engine {
	return NewEngineWithDeps(hal, &StandardLogger{}, pins...)
}

// NewEngineWithDeps creates an engine with a custom logger. Completion
// timestamps come from the driver, so the engine itself needs no clock.
func NewEngineWithDeps(hal HAL, logger Logger, pins ...Pin) *Engine {
	return &Engine{
		hal:    hal,
		logger: logger,
		pins:   pins,
		wake:   make(chan struct{}, 1),
	}
}

// SetUnit requests a specific acquisition unit instead of resolving the
// first free one from the pin set. Takes effect at the next Configure.
func (e *Engine) SetUnit(id UnitID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.explicit = id
}

// ID returns the unit the engine is bound to, or UnitNone.
func (e *Engine) ID() UnitID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unit
}

// Channels returns the number of configured channels.
func (e *Engine) Channels() int {
	return len(e.pins)
}

// Configure validates the configuration, binds an acquisition unit,
// allocates the buffer pool and the two double-buffering targets, and
// programs the transfer and conversion collaborators. On any failure the
// engine remains unconfigured with no partial state retained. With
// cfg.AutoStart set, sampling starts before Configure returns.
func (e *Engine) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool != nil {
		return ErrAlreadyConfigured
	}
	if !validResolution(cfg.Resolution) {
		return fmt.Errorf("%w: %d bits", ErrInvalidResolution, cfg.Resolution)
	}
	if len(e.pins) == 0 {
		return ErrNoChannels
	}
	if len(e.pins) > MaxChannels {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChannels, len(e.pins), MaxChannels)
	}
	if cfg.Samples <= 0 || cfg.Buffers < 2 || cfg.SampleRate == 0 {
		return ErrInvalidConfig
	}

	unit, err := resolveUnit(e.hal, e.pins, e.explicit)
	if err != nil {
		return fmt.Errorf("failed to resolve acquisition unit: %w", err)
	}
	if err := claimUnit(unit, e); err != nil {
		return fmt.Errorf("failed to bind unit %d: %w", unit, err)
	}
	e.unit = unit

	drv, err := e.hal.Unit(unit)
	if err != nil {
		e.unbindLocked()
		return fmt.Errorf("failed to open unit %d: %w", unit, err)
	}
	e.drv = drv

	pool, err := NewPool(cfg.Samples, len(e.pins), cfg.Buffers)
	if err != nil {
		e.teardownLocked()
		return fmt.Errorf("failed to allocate buffer pool: %w", err)
	}
	pool.invalidate = drv.InvalidateCache
	e.pool = pool

	// The two ping/pong targets come straight off the free list.
	e.dmabuf[0] = pool.Alloc(AllocWrite)
	e.dmabuf[1] = pool.Alloc(AllocWrite)

	for _, pin := range e.pins {
		if err := drv.ApplyPinMapping(pin); err != nil {
			e.teardownLocked()
			return fmt.Errorf("failed to map pin %d: %w", pin, err)
		}
	}
	if err := drv.ConfigureTransfer(len(e.pins), PeripheralToMemory); err != nil {
		e.teardownLocked()
		return fmt.Errorf("failed to configure transfer: %w", err)
	}
	if err := drv.ConfigureAcquisition(cfg.Resolution, e.pins, len(e.pins), cfg.SampleTime); err != nil {
		e.teardownLocked()
		return fmt.Errorf("failed to configure acquisition: %w", err)
	}

	e.cfg = cfg
	e.logger.Info("🎚️ Configured unit %d: %d bit, %d Hz, %d ch, %d×%d sample buffers",
		unit, cfg.Resolution, cfg.SampleRate, len(e.pins), cfg.Buffers, cfg.Samples)

	if cfg.AutoStart {
		if err := e.startLocked(cfg.SampleRate); err != nil {
			e.teardownLocked()
			return err
		}
	}
	return nil
}

// Start (re)starts sampling at the given trigger rate. The transfer is
// armed and double buffering enabled before the trigger starts, so the
// first completion event never races an unconfigured target.
func (e *Engine) Start(sampleRate uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool == nil {
		return ErrNotConfigured
	}
	return e.startLocked(sampleRate)
}

func (e *Engine) startLocked(sampleRate uint32) error {
	// Halt any prior run before rearming.
	e.stopHardwareLocked()

	if err := e.drv.StartTransfer(e.dmabuf[0].Data()); err != nil {
		return fmt.Errorf("failed to start transfer: %w", err)
	}
	e.drv.EnableDoubleBuffer(e.dmabuf[0].Data(), e.dmabuf[1].Data())

	if err := e.drv.ConfigureTrigger(sampleRate); err != nil {
		return fmt.Errorf("failed to configure trigger: %w", err)
	}
	if err := e.drv.StartTrigger(); err != nil {
		return fmt.Errorf("failed to start trigger: %w", err)
	}

	e.running = true
	e.logger.Info("▶️ Unit %d sampling at %d Hz", e.unit, sampleRate)
	return nil
}

// armTransfer arms the transfer and enables double buffering without
// starting the trigger. Used for the slave engine in coupled mode,
// whose conversions are clocked by the master's trigger.
func (e *Engine) armTransfer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pool == nil {
		return ErrNotConfigured
	}
	e.stopHardwareLocked()
	if err := e.drv.StartTransfer(e.dmabuf[0].Data()); err != nil {
		return fmt.Errorf("failed to arm transfer: %w", err)
	}
	e.drv.EnableDoubleBuffer(e.dmabuf[0].Data(), e.dmabuf[1].Data())
	return nil
}

// Stop halts the trigger and the transfer but retains the pool and its
// buffers, so Start can resume with the same configuration. Idempotent;
// fails only on a never-configured engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drv == nil {
		return ErrNotConfigured
	}
	e.stopHardwareLocked()
	return nil
}

// End stops sampling, returns the in-flight buffers, destroys the pool
// and releases the unit binding, returning the engine to its
// unconfigured state. A second call reports ErrNotConfigured.
func (e *Engine) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drv == nil {
		return ErrNotConfigured
	}
	e.stopHardwareLocked()
	e.teardownLocked()
	e.logger.Info("⏹️ Unit released")
	return nil
}

// stopHardwareLocked halts the trigger source before the transfer. The
// driver's StopTrigger does not return while a completion callback is
// still in flight, so afterwards no producer touches the pool.
func (e *Engine) stopHardwareLocked() {
	if e.drv == nil {
		return
	}
	e.drv.StopTrigger()
	e.drv.StopTransfer()
	if e.running {
		e.running = false
		e.logger.Info("⏸️ Unit %d stopped", e.unit)
	}
}

func (e *Engine) teardownLocked() {
	for i, b := range e.dmabuf {
		if b != nil {
			b.Release()
			e.dmabuf[i] = nil
		}
	}
	e.pool = nil
	e.drv = nil
	e.cfg = Config{}
	e.running = false
	e.unbindLocked()
}

func (e *Engine) unbindLocked() {
	if e.unit != UnitNone {
		releaseUnit(e.unit, e)
		e.unit = UnitNone
	}
}

// Available reports whether at least one filled buffer awaits the
// consumer.
func (e *Engine) Available() bool {
	p := e.pool
	return p != nil && p.Readable()
}

// Read blocks until a filled buffer is available and returns it in
// chronological acquisition order. The caller owns the buffer until
// Release. On a never-configured engine Read returns a shared empty
// sentinel buffer.
func (e *Engine) Read() *SampleBuffer {
	p := e.pool
	if p == nil {
		return emptyBuffer
	}
	for {
		if b := p.Alloc(AllocRead); b != nil {
			return b
		}
		select {
		case <-e.wake:
		case <-time.After(readPollInterval):
		}
	}
}

// Clear discards all queued but unread buffers.
func (e *Engine) Clear() {
	if p := e.pool; p != nil {
		p.Flush()
	}
}

// AnalogRead is a convenience accessor returning a single sample from
// one channel of the next buffer. It flushes the queue when the buffer
// reports a discontinuity, so subsequent reads see fresh data. On an
// unconfigured engine or an out-of-range channel it reports the problem
// and returns zero.
func (e *Engine) AnalogRead(channel int) Sample {
	if e.pool == nil {
		e.logger.Error("❌ AnalogRead on unconfigured engine")
		return 0
	}
	if channel < 0 || channel >= len(e.pins) {
		e.logger.Error("❌ AnalogRead channel %d out of range (%d channels)", channel, len(e.pins))
		return 0
	}

	buf := e.Read()
	value := buf.Data()[channel]
	e.logger.Debug("AnalogRead value %d at %v", value, buf.Timestamp())

	if buf.GetFlags(FlagDiscontinuous) {
		e.logger.Warn("⚠️ Sample stream discontinuity detected, clearing queue")
		e.Clear()
	}

	buf.Release()
	return value
}

// handleCompletion is the producer-side completion handler, invoked by
// DispatchCompletion once per finished half-transfer. It runs in the
// driver's completion context and completes in bounded steps without
// blocking: on pool exhaustion the finished buffer stays in flight and
// is flagged Discontinuous instead of being queued.
func (e *Engine) handleCompletion(when time.Time) {
	pool := e.pool
	if pool == nil {
		return
	}

	// The hardware flips targets on completion before the callback
	// runs, so the finished buffer is the one NOT currently active.
	ct := 1 - e.drv.CurrentTarget()
	buf := e.dmabuf[ct]
	if buf == nil {
		return
	}

	buf.SetTimestamp(when)

	if pool.Writable() {
		// Drop any stale cached view before the consumer reads it.
		buf.Invalidate()
		buf.Release()
		next := pool.Alloc(AllocWrite)
		if next.Channels() > 1 {
			next.SetFlags(FlagInterleaved)
		}
		e.dmabuf[ct] = next
	} else {
		// Pool exhausted: recycle the same buffer as the next target
		// and record the gap for the consumer.
		buf.SetFlags(FlagDiscontinuous)
	}

	// If the pool was exhausted this re-targets the same storage.
	e.drv.UpdateNextTarget(e.dmabuf[ct].Data())

	select {
	case e.wake <- struct{}{}:
	default:
	}
}
