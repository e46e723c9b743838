package adc

import (
	"sync/atomic"
	"time"
)

// unitTable is the process-wide ownership table mapping acquisition
// units to the engine bound to them. It doubles as the completion
// dispatch table: drivers report completions by unit identity and the
// lookup here finds the owning engine without any dynamic dispatch.
//
// Slots are atomic pointers so claiming is a compare-and-swap and the
// producer-context lookup in DispatchCompletion never takes a lock.
var unitTable [MaxUnits + 1]atomic.Pointer[Engine]

// claimUnit binds an engine to a unit. Binding is exclusive.
func claimUnit(id UnitID, e *Engine) error {
	if id < Unit1 || id > UnitID(MaxUnits) {
		return ErrUnitNotFound
	}
	if !unitTable[id].CompareAndSwap(nil, e) {
		return ErrUnitInUse
	}
	return nil
}

// releaseUnit clears the binding if it still belongs to the engine.
func releaseUnit(id UnitID, e *Engine) {
	if id >= Unit1 && id <= UnitID(MaxUnits) {
		unitTable[id].CompareAndSwap(e, nil)
	}
}

// unitFree reports whether the unit is currently unbound.
func unitFree(id UnitID) bool {
	return id >= Unit1 && id <= UnitID(MaxUnits) && unitTable[id].Load() == nil
}

// DispatchCompletion routes a transfer completion event to the engine
// bound to the unit. Drivers call this once per completed half-transfer,
// from their producer context, with the completion time. Events for
// unbound units are dropped.
func DispatchCompletion(id UnitID, when time.Time) {
	if id < Unit1 || id > UnitID(MaxUnits) {
		return
	}
	if e := unitTable[id].Load(); e != nil {
		e.handleCompletion(when)
	}
}
