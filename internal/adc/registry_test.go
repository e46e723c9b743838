package adc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ClaimIsExclusive(t *testing.T) {
	a := &Engine{}
	b := &Engine{}
	t.Cleanup(func() { releaseUnit(Unit1, a) })

	require.NoError(t, claimUnit(Unit1, a))
	assert.ErrorIs(t, claimUnit(Unit1, b), ErrUnitInUse)
	assert.False(t, unitFree(Unit1))

	// Release by the wrong owner is ignored
	releaseUnit(Unit1, b)
	assert.False(t, unitFree(Unit1))

	releaseUnit(Unit1, a)
	assert.True(t, unitFree(Unit1))
	require.NoError(t, claimUnit(Unit1, b))
	releaseUnit(Unit1, b)
}

func TestRegistry_RejectsInvalidUnits(t *testing.T) {
	e := &Engine{}
	assert.ErrorIs(t, claimUnit(UnitNone, e), ErrUnitNotFound)
	assert.ErrorIs(t, claimUnit(UnitID(MaxUnits+1), e), ErrUnitNotFound)
	assert.False(t, unitFree(UnitNone))
}

func TestDispatchCompletion_UnboundUnitIsDropped(t *testing.T) {
	// No engine bound: the event must be silently discarded
	assert.NotPanics(t, func() {
		DispatchCompletion(Unit3, time.Now())
		DispatchCompletion(UnitNone, time.Now())
		DispatchCompletion(UnitID(99), time.Now())
	})
}
