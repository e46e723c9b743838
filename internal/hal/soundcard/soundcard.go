// Package soundcard backs the acquisition HAL with an audio capture
// device. The sound card's ADC stands in for an on-chip converter: each
// capture callback feeds the active transfer target and a completion is
// reported whenever a full window has been filled.
package soundcard

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/adcstream/internal/adc"
)

// Sound cards expose a single converter, so the HAL has one unit. Pins
// number the capture channels.
const maxPins = adc.MaxChannels

// HAL drives one acquisition unit backed by a malgo capture device.
type HAL struct {
	ctx    *malgo.AllocatedContext
	logger adc.Logger
	unit   *Unit
}

// NewHAL initializes the audio backend with default dependencies.
func NewHAL() (*HAL, error) {
	return NewHALWithDeps("", &adc.StandardLogger{}, &adc.RealTimeProvider{})
}

// NewHALWithDeps initializes the audio backend. deviceName selects a
// capture device by substring match; empty means the system default.
func NewHALWithDeps(deviceName string, logger adc.Logger, clock adc.TimeProvider) (*HAL, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("audio backend: %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	h := &HAL{
		ctx:    ctx,
		logger: logger,
	}
	h.unit = &Unit{hal: h, clock: clock, deviceName: deviceName}
	return h, nil
}

// Close releases the audio backend. All engines must have ended first.
func (h *HAL) Close() error {
	if err := h.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to uninitialize audio context: %w", err)
	}
	h.ctx.Free()
	return nil
}

// Unit implements adc.HAL.
func (h *HAL) Unit(id adc.UnitID) (adc.Driver, error) {
	if id != adc.Unit1 {
		return nil, fmt.Errorf("%w: %d", adc.ErrUnitNotFound, id)
	}
	return h.unit, nil
}

// UnitsForPin implements adc.HAL. Every capture channel routes to the
// single unit.
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
		return fmt.Errorf("%w: sound card backend has a single unit", adc.ErrDualUnits)
	}
	return nil
}

// Unit adapts a capture device to adc.Driver. The device's data
// callback is the producer context: it fills the active target and
// dispatches a completion per full window, exactly like a
// double-buffered DMA peripheral.
type Unit struct {
	hal        *HAL
	clock      adc.TimeProvider
	deviceName string

	mu         sync.Mutex
	device     *malgo.Device
	channels   int
	resolution int
	rate       uint32

	// Transfer state. Mutated only while the device is stopped or from
	// the data callback, mirroring the DMA ownership rules.
	targets [2][]adc.Sample
	ct      int
	dbm     bool
	filled  int
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

// ConfigureAcquisition implements adc.Driver. The sample time is
// ignored; the capture clock is fixed by the device.
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

// ConfigureTrigger implements adc.Driver. The rate programs the capture
// device's sample clock.
func (u *Unit) ConfigureTrigger(rate uint32) error {
	if rate == 0 {
		return fmt.Errorf("invalid trigger rate: %d", rate)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rate = rate
	return nil
}

// StartTrigger implements adc.Driver. It opens and starts the capture
// device; from here on the device clock produces the data.
func (u *Unit) StartTrigger() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.dbm || u.channels == 0 {
		return fmt.Errorf("capture unit: transfer not armed")
	}
	if u.device != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(u.channels)
	deviceConfig.SampleRate = u.rate
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Periods = 3

	if u.deviceName != "" {
		id, err := u.findDevice(u.deviceName)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputBuffer, inputBuffer []byte, frameCount uint32) {
			u.onData(inputBuffer)
		},
	}

	device, err := malgo.InitDevice(u.hal.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	u.device = device
	u.hal.logger.Info("🎤 Capture device started: %d Hz, %d ch", u.rate, u.channels)
	return nil
}

// StopTrigger implements adc.Driver. Device teardown blocks until the
// capture thread has stopped, so no data callback is in flight
// afterwards.
func (u *Unit) StopTrigger() {
	u.mu.Lock()
	device := u.device
	u.device = nil
	u.mu.Unlock()

	if device == nil {
		return
	}
	if err := device.Stop(); err != nil {
		u.hal.logger.Warn("⚠️ Error stopping capture device: %v", err)
	}
	device.Uninit()
}

// InvalidateCache implements adc.Driver. Capture data never passes
// through a stale CPU cache.
func (u *Unit) InvalidateCache(data []adc.Sample) {}

// findDevice resolves a capture device by name substring.
func (u *Unit) findDevice(name string) (malgo.DeviceID, error) {
	infos, err := u.hal.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	for i := range infos {
		if deviceMatches(infos[i].Name(), name) {
			return infos[i].ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("capture device not found: %s", name)
}

// deviceMatches reports whether a capture device name satisfies the
// requested selector. Hardware names carry backend-specific prefixes
// and suffixes, so a substring is enough to pick a device.
func deviceMatches(name, selector string) bool {
	return strings.Contains(name, selector)
}

// onData feeds captured frames into the active target. Whenever the
// target fills, targets flip and a completion is dispatched; leftover
// frames spill into the next target.
func (u *Unit) onData(input []byte) {
	if !u.dbm {
		return
	}

	shift := 16 - u.resolution
	for off := 0; off+1 < len(input); off += 2 {
		target := u.targets[u.ct]
		if u.filled >= len(target) {
			break
		}

		// Signed capture samples become unipolar converter counts at
		// the configured resolution.
		s := int16(binary.LittleEndian.Uint16(input[off:]))
		target[u.filled] = adc.Sample(uint16(int32(s)+32768) >> shift)
		u.filled++

		if u.filled == len(target) {
			u.filled = 0
			u.ct = 1 - u.ct
			adc.DispatchCompletion(adc.Unit1, u.clock.Now())
			if !u.dbm {
				return
			}
		}
	}
}
