// Package sim provides a software implementation of the acquisition HAL:
// three simulated units whose trigger is a timer goroutine and whose
// converter fills targets with a synthetic waveform. It backs the tests
// and the demo CLI, and doubles as the reference for writing hardware
// drivers.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/adcstream/internal/adc"
)

// Analog pins of the simulated board.
const (
	A0 adc.Pin = iota
	A1
	A2
	A3
	A4
	A5
	A6
	A7
)

// DefaultPinMap routes the simulated pins to units, alternates listed in
// priority order. A2/A3 reach every unit, A6 and A7 are single-unit.
func DefaultPinMap() map[adc.Pin][]adc.UnitID {
	return map[adc.Pin][]adc.UnitID{
		A0: {adc.Unit1, adc.Unit2},
		A1: {adc.Unit1, adc.Unit2},
		A2: {adc.Unit1, adc.Unit2, adc.Unit3},
		A3: {adc.Unit1, adc.Unit2, adc.Unit3},
		A4: {adc.Unit2, adc.Unit3},
		A5: {adc.Unit2, adc.Unit3},
		A6: {adc.Unit3},
		A7: {adc.Unit1},
	}
}

// FillFunc synthesizes one acquisition window into dst. seq counts
// windows since the trigger started.
type FillFunc func(dst []adc.Sample, seq uint64, channels, resolution int)

// rampFill is the default waveform: an incrementing counter clipped to
// the configured resolution, offset per channel so interleaving is
// visible in tests.
func rampFill(dst []adc.Sample, seq uint64, channels, resolution int) {
	mask := adc.Sample(1<<resolution - 1)
	base := seq * uint64(len(dst)/channels)
	for i := range dst {
		frame := uint64(i / channels)
		ch := uint64(i % channels)
		dst[i] = adc.Sample(base+frame+ch*1000) & mask
	}
}

// HAL is the simulated board: three acquisition units and a pin map.
type HAL struct {
	units   [adc.MaxUnits + 1]*Unit
	pinMap  map[adc.Pin][]adc.UnitID
	logger  adc.Logger
	clock   adc.TimeProvider
	manual  bool
	coupled bool
	mu      sync.Mutex
}

// NewHAL creates a simulated board with the default pin map.
func NewHAL() *HAL {
	return NewHALWithDeps(DefaultPinMap(), &adc.StandardLogger{}, &adc.RealTimeProvider{})
}

// NewHALWithDeps creates a simulated board with custom dependencies.
func NewHALWithDeps(pinMap map[adc.Pin][]adc.UnitID, logger adc.Logger, clock adc.TimeProvider) *HAL {
	h := &HAL{
		pinMap: pinMap,
		logger: logger,
		clock:  clock,
	}
	for id := adc.Unit1; id <= adc.UnitID(adc.MaxUnits); id++ {
		h.units[id] = &Unit{hal: h, id: id, fill: rampFill}
	}
	return h
}

// SetManualTrigger disables the timer goroutine: StartTrigger only arms
// the unit and completions are produced by explicit Fire calls. Tests
// use this for deterministic stepping.
func (h *HAL) SetManualTrigger(manual bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.manual = manual
}

// Unit implements adc.HAL.
func (h *HAL) Unit(id adc.UnitID) (adc.Driver, error) {
	if id < adc.Unit1 || id > adc.UnitID(adc.MaxUnits) {
		return nil, fmt.Errorf("%w: %d", adc.ErrUnitNotFound, id)
	}
	return h.units[id], nil
}

// UnitsForPin implements adc.HAL.
func (h *HAL) UnitsForPin(pin adc.Pin) []adc.UnitID {
	return h.pinMap[pin]
}

// EnableCoupledMode implements adc.HAL. While coupled, every completion
// of Unit1's trigger also steps Unit2.
func (h *HAL) EnableCoupledMode(enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.coupled = enable
	return nil
}

// Fire produces one completion event on the unit, as if the timer had
// elapsed. The unit must be armed (StartTrigger called). Manual-trigger
// counterpart of the timer goroutine.
func (h *HAL) Fire(id adc.UnitID) {
	if id >= adc.Unit1 && id <= adc.UnitID(adc.MaxUnits) {
		h.units[id].step()
	}
}

// SetFill replaces the synthetic waveform of a unit.
func (h *HAL) SetFill(id adc.UnitID, fill FillFunc) {
	if id >= adc.Unit1 && id <= adc.UnitID(adc.MaxUnits) && fill != nil {
		h.units[id].fill = fill
	}
}

// Unit is one simulated acquisition unit.
type Unit struct {
	hal  *HAL
	id   adc.UnitID
	fill FillFunc

	mu         sync.Mutex
	channels   int
	resolution int
	rate       uint32
	armed      bool
	running    bool
	quit       chan struct{}
	wg         sync.WaitGroup

	// Transfer state. Mutated only while the trigger is stopped or from
	// the producer context, mirroring the DMA ownership rules.
	targets [2][]adc.Sample
	ct      int
	dbm     bool
	seq     uint64
}

// ConfigureTransfer implements adc.Driver.
func (u *Unit) ConfigureTransfer(channels int, dir adc.TransferDirection) error {
	if dir != adc.PeripheralToMemory {
		return fmt.Errorf("unsupported transfer direction: %d", dir)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.channels = channels
	return nil
}

// ConfigureAcquisition implements adc.Driver.
func (u *Unit) ConfigureAcquisition(resolution int, pins []adc.Pin, channels int, st adc.SampleTime) error {
	if len(pins) != channels {
		return fmt.Errorf("pin count %d does not match channel count %d", len(pins), channels)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resolution = resolution
	u.channels = channels
	return nil
}

// ApplyPinMapping implements adc.Driver.
func (u *Unit) ApplyPinMapping(pin adc.Pin) error {
	for _, id := range u.hal.pinMap[pin] {
		if id == u.id {
			return nil
		}
	}
	return fmt.Errorf("%w: pin %d on unit %d", adc.ErrPinNotMapped, pin, u.id)
}

// StartTransfer implements adc.Driver.
func (u *Unit) StartTransfer(target []adc.Sample) error {
	u.targets[0] = target
	u.ct = 0
	u.dbm = false
	u.seq = 0
	return nil
}

// EnableDoubleBuffer implements adc.Driver.
func (u *Unit) EnableDoubleBuffer(target0, target1 []adc.Sample) {
	u.targets[0] = target0
	u.targets[1] = target1
	u.dbm = true
}

// UpdateNextTarget implements adc.Driver. The slot not currently being
// filled is retargeted.
func (u *Unit) UpdateNextTarget(target []adc.Sample) {
	u.targets[1-u.ct] = target
}

// CurrentTarget implements adc.Driver.
func (u *Unit) CurrentTarget() int {
	return u.ct
}

// StopTransfer implements adc.Driver.
func (u *Unit) StopTransfer() {
	u.dbm = false
}

// ConfigureTrigger implements adc.Driver.
func (u *Unit) ConfigureTrigger(rate uint32) error {
	if rate == 0 {
		return fmt.Errorf("invalid trigger rate: %d", rate)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rate = rate
	return nil
}

// StartTrigger implements adc.Driver. Unless the HAL is in manual mode
// it spawns the timer goroutine producing one completion per window.
func (u *Unit) StartTrigger() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.dbm || u.channels == 0 {
		return fmt.Errorf("unit %d: transfer not armed", u.id)
	}
	u.armed = true

	u.hal.mu.Lock()
	manual := u.hal.manual
	u.hal.mu.Unlock()
	if manual || u.running {
		return nil
	}

	period := u.windowPeriod()
	u.quit = make(chan struct{})
	u.running = true
	u.wg.Add(1)
	go u.run(u.quit, period)
	return nil
}

// StopTrigger implements adc.Driver. It does not return until the timer
// goroutine has exited, so no completion callback is in flight
// afterwards.
func (u *Unit) StopTrigger() {
	u.mu.Lock()
	if !u.armed {
		u.mu.Unlock()
		return
	}
	u.armed = false
	running := u.running
	quit := u.quit
	u.running = false
	u.mu.Unlock()

	if running {
		close(quit)
		u.wg.Wait()
	}
}

// InvalidateCache implements adc.Driver. The simulator shares memory
// with the consumer, so there is nothing to discard.
func (u *Unit) InvalidateCache(data []adc.Sample) {}

// windowPeriod is the wall-clock time one acquisition window takes.
func (u *Unit) windowPeriod() time.Duration {
	samplesPerChannel := len(u.targets[0]) / u.channels
	if samplesPerChannel == 0 || u.rate == 0 {
		return time.Millisecond
	}
	return time.Duration(float64(time.Second) * float64(samplesPerChannel) / float64(u.rate))
}

func (u *Unit) run(quit chan struct{}, period time.Duration) {
	defer u.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			u.step()
		}
	}
}

// step completes one window on an armed unit. While coupled, Unit1's
// trigger also clocks Unit2, so both deliver in lockstep even though
// the slave's own trigger never started.
func (u *Unit) step() {
	u.mu.Lock()
	armed := u.armed
	u.mu.Unlock()
	if !armed {
		return
	}

	when := u.hal.clock.Now()
	u.stepWindow(when)

	u.hal.mu.Lock()
	coupled := u.hal.coupled
	u.hal.mu.Unlock()
	if coupled && u.id == adc.Unit1 {
		u.hal.units[adc.Unit2].stepWindow(when)
	}
}

// stepWindow fills the active target, flips targets the way
// double-buffered hardware does, then reports the completion.
func (u *Unit) stepWindow(when time.Time) {
	if !u.dbm {
		return
	}
	u.fill(u.targets[u.ct], u.seq, u.channels, u.resolution)
	u.seq++
	u.ct = 1 - u.ct
	adc.DispatchCompletion(u.id, when)
}
