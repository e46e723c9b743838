// Package serialadc backs the acquisition HAL with an external
// converter board attached over a serial link. The host sends a small
// binary command set (configure, start, stop) and the board answers
// with a continuous little-endian stream of conversion counts; a reader
// goroutine slices that stream into transfer windows and reports
// completions the same way an on-chip DMA controller would.
package serialadc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/tphakala/adcstream/internal/adc"
)

// Wire protocol bytes understood by the converter board.
const (
	cmdConfigure = 'C' // followed by resolution, channels, rate (uint32 LE)
	cmdStart     = 'S'
	cmdStop      = 'T'
)

// External boards expose a single converter, pins number its input
// channels.
const maxPins = adc.MaxChannels

// readChunkSize is the reader goroutine's scratch buffer size.
const readChunkSize = 4096

// Port is the serial link to the board. The read side must time out
// rather than block forever so the reader goroutine can observe stop
// requests.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any buffered data.
	Flush() error
}

// Config holds the serial link configuration.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC links ignore this.
	Baud int

	// ReadTimeout bounds a single read so the reader can poll for
	// shutdown.
	ReadTimeout time.Duration
}

// DefaultConfig returns a configuration suitable for a USB CDC board.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        921600,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// nativePort wraps the tarm/serial implementation.
type nativePort struct {
	port *serial.Port
}

// Open opens the serial device described by cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &nativePort{port: port}, nil
}

func (p *nativePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *nativePort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *nativePort) Close() error                { return p.port.Close() }
func (p *nativePort) Flush() error                { return p.port.Flush() }

// HAL drives one acquisition unit backed by a serial-attached board.
type HAL struct {
	port   Port
	logger adc.Logger
	unit   *Unit
}

// NewHAL opens the serial device and wraps it with default
// dependencies.
func NewHAL(device string) (*HAL, error) {
	port, err := Open(DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	return NewHALWithDeps(port, &adc.StandardLogger{}, &adc.RealTimeProvider{}), nil
}

// NewHALWithDeps wraps an already opened port. Tests inject an
// in-memory port here.
func NewHALWithDeps(port Port, logger adc.Logger, clock adc.TimeProvider) *HAL {
	h := &HAL{
		port:   port,
		logger: logger,
	}
	h.unit = &Unit{hal: h, clock: clock}
	return h
}

// Close shuts the serial link down. All engines must have ended first.
func (h *HAL) Close() error {
	return h.port.Close()
}

// Unit implements adc.HAL.
func (h *HAL) Unit(id adc.UnitID) (adc.Driver, error) {
	if id != adc.Unit1 {
		return nil, fmt.Errorf("%w: %d", adc.ErrUnitNotFound, id)
	}
	return h.unit, nil
}

// UnitsForPin implements adc.HAL.
func (h *HAL) UnitsForPin(pin adc.Pin) []adc.UnitID {
	if pin < 0 || pin >= maxPins {
		return nil
	}
	return []adc.UnitID{adc.Unit1}
}

// EnableCoupledMode implements adc.HAL. A single-unit backend cannot
// couple.
func (h *HAL) EnableCoupledMode(enable bool) error {
	if enable {
		return fmt.Errorf("%w: serial backend has a single unit", adc.ErrDualUnits)
	}
	return nil
}

// Unit adapts the serial stream to adc.Driver. The reader goroutine is
// the producer context: it fills the active target from the stream and
// dispatches one completion per full window.
type Unit struct {
	hal   *HAL
	clock adc.TimeProvider

	mu         sync.Mutex
	channels   int
	resolution int
	rate       uint32
	running    bool
	quit       chan struct{}
	wg         sync.WaitGroup

	// Transfer state. Mutated only while the reader is stopped or from
	// the reader goroutine, mirroring the DMA ownership rules.
	targets  [2][]adc.Sample
	ct       int
	dbm      bool
	filled   int
	carry    byte
	hasCarry bool
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

// ConfigureAcquisition implements adc.Driver. The sample time is the
// board's concern and travels with the configure command implicitly.
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
	if pin < 0 || pin >= maxPins {
		return fmt.Errorf("%w: pin %d", adc.ErrPinNotMapped, pin)
	}
	return nil
}

// StartTransfer implements adc.Driver.
func (u *Unit) StartTransfer(target []adc.Sample) error {
	u.targets[0] = target
	u.ct = 0
	u.dbm = false
	u.filled = 0
	u.hasCarry = false
	return nil
}

// EnableDoubleBuffer implements adc.Driver.
func (u *Unit) EnableDoubleBuffer(target0, target1 []adc.Sample) {
	u.targets[0] = target0
	u.targets[1] = target1
	u.dbm = true
}

// UpdateNextTarget implements adc.Driver.
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

// StartTrigger implements adc.Driver. The board is configured and
// commanded to stream, and the reader goroutine starts consuming.
func (u *Unit) StartTrigger() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.dbm || u.channels == 0 {
		return fmt.Errorf("serial unit: transfer not armed")
	}
	if u.running {
		return nil
	}

	cmd := make([]byte, 7)
	cmd[0] = cmdConfigure
	cmd[1] = byte(u.resolution)
	cmd[2] = byte(u.channels)
	binary.LittleEndian.PutUint32(cmd[3:], u.rate)
	if _, err := u.hal.port.Write(cmd); err != nil {
		return fmt.Errorf("failed to send configure command: %w", err)
	}

	// Drop stale stream bytes from a previous run before starting.
	if err := u.hal.port.Flush(); err != nil {
		return fmt.Errorf("failed to flush serial port: %w", err)
	}
	if _, err := u.hal.port.Write([]byte{cmdStart}); err != nil {
		return fmt.Errorf("failed to send start command: %w", err)
	}

	u.quit = make(chan struct{})
	u.running = true
	u.wg.Add(1)
	go u.read(u.quit)

	u.hal.logger.Info("🔌 Serial board streaming: %d Hz, %d ch, %d bit", u.rate, u.channels, u.resolution)
	return nil
}

// StopTrigger implements adc.Driver. It does not return until the
// reader goroutine has exited, so no completion callback is in flight
// afterwards.
func (u *Unit) StopTrigger() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	quit := u.quit
	u.mu.Unlock()

	if _, err := u.hal.port.Write([]byte{cmdStop}); err != nil {
		u.hal.logger.Warn("⚠️ Error sending stop command: %v", err)
	}
	close(quit)
	u.wg.Wait()
}

// InvalidateCache implements adc.Driver. Samples arrive through the
// serial driver, never through a stale CPU cache.
func (u *Unit) InvalidateCache(data []adc.Sample) {}

// read is the reader goroutine. Port reads time out periodically so the
// quit channel gets observed even on a silent link.
func (u *Unit) read(quit chan struct{}) {
	defer u.wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-quit:
			return
		default:
		}

		n, err := u.hal.port.Read(buf)
		if n > 0 {
			u.ingest(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			// A timed-out read with no data reports io.EOF. The link is
			// still live, keep polling until told to quit.
		default:
			u.hal.logger.Error("❌ Serial read failed: %v", err)
			return
		}
	}
}

// ingest slices the raw count stream into transfer windows. A sample
// may straddle two reads, so one carry byte is kept between calls.
func (u *Unit) ingest(data []byte) {
	for _, b := range data {
		if !u.hasCarry {
			u.carry = b
			u.hasCarry = true
			continue
		}
		u.hasCarry = false

		if !u.dbm {
			continue
		}
		target := u.targets[u.ct]
		if u.filled >= len(target) {
			continue
		}

		target[u.filled] = adc.Sample(uint16(u.carry) | uint16(b)<<8)
		u.filled++

		if u.filled == len(target) {
			u.filled = 0
			u.ct = 1 - u.ct
			adc.DispatchCompletion(adc.Unit1, u.clock.Now())
		}
	}
}
