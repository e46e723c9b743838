package adc

// HAL represents the peripheral configuration layer for a board. It hands
// out per-unit drivers and knows how analog pins route to units.
//
// Implementations live under internal/hal: a software simulator, a
// miniaudio-backed capture device and a serial-attached sampler.
type HAL interface {
	// Unit returns the driver for a physical acquisition unit.
	Unit(id UnitID) (Driver, error)

	// UnitsForPin returns the units the pin can be routed to, in
	// alternate-mapping priority order. An empty slice means the pin has
	// no analog function.
	UnitsForPin(pin Pin) []UnitID

	// EnableCoupledMode couples Unit1 and Unit2 so that starting the
	// first also starts the second in lockstep.
	EnableCoupledMode(enable bool) error
}

// Driver configures and runs one acquisition unit. All methods are called
// from application context only; the driver delivers completion events by
// calling DispatchCompletion from its own producer context.
type Driver interface {
	// ConfigureTransfer prepares the DMA transfer machinery.
	ConfigureTransfer(channels int, dir TransferDirection) error

	// ConfigureAcquisition prepares the converter itself.
	ConfigureAcquisition(resolution int, pins []Pin, channels int, st SampleTime) error

	// ApplyPinMapping routes the pin to this unit, selecting the
	// alternate function chosen during resolution.
	ApplyPinMapping(pin Pin) error

	// StartTransfer arms the transfer with its first target.
	StartTransfer(target []Sample) error

	// EnableDoubleBuffer enables ping/pong transfers between two targets.
	// Must be called after StartTransfer and before StartTrigger.
	EnableDoubleBuffer(target0, target1 []Sample)

	// UpdateNextTarget replaces the target that is not currently being
	// filled. Called from the completion handler.
	UpdateNextTarget(target []Sample)

	// CurrentTarget returns the index (0 or 1) of the target the
	// hardware is filling right now. The hardware flips targets on
	// completion before the callback runs, so the buffer that just
	// finished is the other one.
	CurrentTarget() int

	// StopTransfer halts the transfer. Idempotent.
	StopTransfer()

	// ConfigureTrigger sets the trigger source to rate Hz.
	ConfigureTrigger(rate uint32) error

	// StartTrigger starts conversions. The transfer must be armed first.
	StartTrigger() error

	// StopTrigger halts the trigger source. It must not return while a
	// completion callback is still in flight.
	StopTrigger()

	// InvalidateCache discards any cached view of the target memory
	// before the CPU reads data the transfer wrote behind its back.
	InvalidateCache(data []Sample)
}
