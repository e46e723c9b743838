package adc

// resolveUnit finds the single acquisition unit that every requested pin
// can be routed to, honoring the alternate-mapping priority order the
// HAL reports per pin.
//
// With an explicit unit the pins merely have to reach it. Without one,
// the first pin's alternates decide the candidates: the first candidate
// that is still unbound and reachable from every other pin wins.
func resolveUnit(h HAL, pins []Pin, explicit UnitID) (UnitID, error) {
	if len(pins) == 0 {
		return UnitNone, ErrNoChannels
	}

	var candidates []UnitID
	if explicit != UnitNone {
		candidates = []UnitID{explicit}
	} else {
		candidates = h.UnitsForPin(pins[0])
		if len(candidates) == 0 {
			return UnitNone, ErrPinNotMapped
		}
	}

	for _, unit := range candidates {
		if explicit == UnitNone && !unitFree(unit) {
			continue
		}
		if pinsReach(h, pins, unit) {
			return unit, nil
		}
	}
	return UnitNone, ErrPinNotMapped
}

// pinsReach reports whether every pin has at least one alternate mapping
// to the unit.
func pinsReach(h HAL, pins []Pin, unit UnitID) bool {
	for _, pin := range pins {
		if !pinReaches(h, pin, unit) {
			return false
		}
	}
	return true
}

func pinReaches(h HAL, pin Pin, unit UnitID) bool {
	for _, u := range h.UnitsForPin(pin) {
		if u == unit {
			return true
		}
	}
	return false
}
