package adc

import (
	"fmt"
)

// Dual coordinates two engines in hardware-coupled mode: the trigger of
// the first unit also clocks the second, so both sample in lockstep.
// Only Unit1 (master) and Unit2 (slave) can be paired.
type Dual struct {
	hal    HAL
	first  *Engine
	second *Engine
	logger Logger
}

// NewDual creates a coordinator for two engines. The engines must
// resolve to Unit1 and Unit2 and sample the same number of channels.
func NewDual(hal HAL, first, second *Engine) *Dual {
	return NewDualWithDeps(hal, first, second, &StandardLogger{})
}

// NewDualWithDeps creates a coordinator with a custom logger.
func NewDualWithDeps(hal HAL, first, second *Engine, logger Logger) *Dual {
	return &Dual{
		hal:    hal,
		first:  first,
		second: second,
		logger: logger,
	}
}

// Begin configures both engines without starting them, validates the
// pairing constraints, enables coupled mode and starts the first engine;
// the second starts implicitly through the hardware coupling. On any
// failure the partially configured engines are stopped and no peripheral
// is left running.
func (d *Dual) Begin(cfg Config) error {
	if d.first.Channels() != d.second.Channels() {
		return fmt.Errorf("%w: %d vs %d", ErrChannelMismatch,
			d.first.Channels(), d.second.Channels())
	}

	// Both engines configure with the trigger held off; coupled mode
	// must be enabled before the master trigger starts.
	single := cfg
	single.AutoStart = false

	if err := d.first.Configure(single); err != nil {
		return fmt.Errorf("failed to configure first engine: %w", err)
	}
	if err := d.second.Configure(single); err != nil {
		d.rollback(d.first)
		return fmt.Errorf("failed to configure second engine: %w", err)
	}

	// Only the designated master/slave pair supports coupling.
	if d.first.ID() != Unit1 || d.second.ID() != Unit2 {
		d.rollback(d.first)
		d.rollback(d.second)
		return fmt.Errorf("%w: resolved units %d and %d",
			ErrDualUnits, d.first.ID(), d.second.ID())
	}

	if err := d.hal.EnableCoupledMode(true); err != nil {
		d.rollback(d.first)
		d.rollback(d.second)
		return fmt.Errorf("failed to enable coupled mode: %w", err)
	}

	// The slave has no trigger of its own; its transfer still has to be
	// armed before the master clocks it.
	if err := d.second.armTransfer(); err != nil {
		d.rollback(d.first)
		d.rollback(d.second)
		if cErr := d.hal.EnableCoupledMode(false); cErr != nil {
			d.logger.Warn("⚠️ Error disabling coupled mode: %v", cErr)
		}
		return err
	}

	d.logger.Info("🔗 Dual mode: units %d+%d, %d channels each",
		d.first.ID(), d.second.ID(), d.first.Channels())

	// Starting the master also starts the slave.
	return d.first.Start(cfg.SampleRate)
}

// Stop halts both engines and decouples them. Always succeeds.
func (d *Dual) Stop() error {
	if err := d.first.Stop(); err != nil {
		d.logger.Warn("⚠️ Error stopping first engine: %v", err)
	}
	if err := d.second.Stop(); err != nil {
		d.logger.Warn("⚠️ Error stopping second engine: %v", err)
	}
	if err := d.hal.EnableCoupledMode(false); err != nil {
		d.logger.Warn("⚠️ Error disabling coupled mode: %v", err)
	}
	return nil
}

// End stops both engines and tears them down.
func (d *Dual) End() error {
	if err := d.Stop(); err != nil {
		return err
	}
	if err := d.first.End(); err != nil {
		d.logger.Warn("⚠️ Error ending first engine: %v", err)
	}
	if err := d.second.End(); err != nil {
		d.logger.Warn("⚠️ Error ending second engine: %v", err)
	}
	return nil
}

// rollback undoes a partial Begin on one engine. Configuration state is
// torn down entirely so a later Begin can rebind the units.
func (d *Dual) rollback(e *Engine) {
	if err := e.End(); err != nil && err != ErrNotConfigured {
		d.logger.Warn("⚠️ Error rolling back engine: %v", err)
	}
}
