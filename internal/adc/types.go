// Package adc implements double-buffered streaming of analog-to-digital
// conversion results from a hardware acquisition unit into
// application-consumable sample buffers.
//
// The producer side (the driver's completion callback) and the consumer
// side (the application) exchange fixed-size buffers through a Pool that
// never blocks the producer: when the consumer falls behind, the in-flight
// buffer is recycled and flagged Discontinuous instead of growing memory
// or stalling the sampling clock.
package adc

// Sample is a single conversion result. All supported resolutions
// (8 to 16 bits) fit a 16-bit word, matching the DMA transfer width.
type Sample = uint16

// UnitID identifies a physical acquisition unit.
type UnitID int

const (
	// UnitNone means no unit has been resolved or bound.
	UnitNone UnitID = 0

	// Unit1 is the first acquisition unit. It is the master unit in
	// coupled (dual) mode.
	Unit1 UnitID = 1

	// Unit2 is the second acquisition unit, the slave in coupled mode.
	Unit2 UnitID = 2

	// Unit3 is the third acquisition unit. It cannot participate in
	// coupled mode.
	Unit3 UnitID = 3
)

// MaxUnits is the number of physical acquisition units.
const MaxUnits = 3

// MaxChannels is the maximum number of channels that can be sampled
// successively by one unit.
const MaxChannels = 16

// Pin identifies an analog input pin. The driver decides which units a
// pin can be routed to, possibly through alternate mappings.
type Pin int

// SampleTime selects the per-conversion sampling window in ADC clock
// cycles. Longer sampling times improve accuracy but lower the maximum
// achievable rate.
type SampleTime int

const (
	SampleTime1_5 SampleTime = iota
	SampleTime2_5
	SampleTime8_5 // default
	SampleTime16_5
	SampleTime32_5
	SampleTime64_5
	SampleTime387_5
	SampleTime810_5
)

// TransferDirection selects the direction of a DMA transfer.
type TransferDirection int

const (
	// PeripheralToMemory moves conversion results into sample buffers.
	PeripheralToMemory TransferDirection = iota

	// MemoryToPeripheral is the outbound direction, unused by capture.
	MemoryToPeripheral
)

// supportedResolutions lists the accepted conversion resolutions in bits.
var supportedResolutions = []int{8, 10, 12, 14, 16}

// validResolution reports whether the resolution is in the supported set.
func validResolution(bits int) bool {
	for _, r := range supportedResolutions {
		if r == bits {
			return true
		}
	}
	return false
}

// Config holds the acquisition parameters passed to Engine.Configure.
type Config struct {
	// Resolution is the conversion resolution in bits (8, 10, 12, 14, 16).
	Resolution int

	// SampleRate is the trigger rate in Hz.
	SampleRate uint32

	// Samples is the number of samples per channel in one buffer.
	Samples int

	// Buffers is the total number of buffers in the pool, including the
	// two in-flight double-buffering targets.
	Buffers int

	// SampleTime is the per-conversion sampling window.
	SampleTime SampleTime

	// AutoStart starts the trigger immediately after configuration.
	AutoStart bool
}

// Common error values.
var (
	ErrNotConfigured     = Error("engine not configured")
	ErrAlreadyConfigured = Error("engine already configured")
	ErrInvalidResolution = Error("invalid resolution")
	ErrNoChannels        = Error("no channels configured")
	ErrTooManyChannels   = Error("too many channels")
	ErrInvalidConfig     = Error("invalid configuration")
	ErrUnitInUse         = Error("acquisition unit already in use")
	ErrUnitNotFound      = Error("acquisition unit not found")
	ErrPinNotMapped      = Error("pin cannot be mapped to a single unit")
	ErrChannelRange      = Error("channel index out of range")
	ErrChannelMismatch   = Error("channel counts do not match")
	ErrDualUnits         = Error("dual mode requires unit 1 and unit 2")
)

// Error type for common errors.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
