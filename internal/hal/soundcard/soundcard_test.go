package soundcard

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/adcstream/internal/adc"
)

// pcm encodes signed 16-bit samples the way the capture callback
// receives them.
func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func newTestUnit(t *testing.T, resolution, channels, windowSize int) (*Unit, [2][]adc.Sample) {
	t.Helper()
	u := &Unit{clock: &adc.RealTimeProvider{}}
	require.NoError(t, u.ConfigureTransfer(channels, adc.PeripheralToMemory))
	pins := make([]adc.Pin, channels)
	for i := range pins {
		pins[i] = adc.Pin(i)
	}
	require.NoError(t, u.ConfigureAcquisition(resolution, pins, channels, adc.SampleTime8_5))

	var targets [2][]adc.Sample
	targets[0] = make([]adc.Sample, windowSize)
	targets[1] = make([]adc.Sample, windowSize)
	require.NoError(t, u.StartTransfer(targets[0]))
	u.EnableDoubleBuffer(targets[0], targets[1])
	return u, targets
}

func TestUnit_ConvertsSignedCaptureToCounts(t *testing.T) {
	u, targets := newTestUnit(t, 12, 1, 4)

	// Full negative, zero and full positive swing at 12 bit
	u.onData(pcm(-32768, 0, 32767, 0))

	assert.Equal(t, adc.Sample(0), targets[0][0])
	assert.Equal(t, adc.Sample(0x800), targets[0][1])
	assert.Equal(t, adc.Sample(0xFFF), targets[0][2])
}

func TestUnit_FlipsTargetsOnFullWindow(t *testing.T) {
	u, targets := newTestUnit(t, 16, 1, 2)

	require.Equal(t, 0, u.CurrentTarget())
	u.onData(pcm(-32768, -32767, -32766))

	// The first window filled target 0, the leftover frame spilled
	// into target 1
	assert.Equal(t, 1, u.CurrentTarget())
	assert.Equal(t, adc.Sample(0), targets[0][0])
	assert.Equal(t, adc.Sample(1), targets[0][1])
	assert.Equal(t, adc.Sample(2), targets[1][0])
}

func TestUnit_StopTransferHaltsFilling(t *testing.T) {
	u, targets := newTestUnit(t, 16, 1, 2)

	u.StopTransfer()
	u.onData(pcm(1234, 1234))
	assert.Equal(t, adc.Sample(0), targets[0][0])
}

func TestUnit_StartTriggerRequiresArmedTransfer(t *testing.T) {
	u := &Unit{clock: &adc.RealTimeProvider{}}
	require.NoError(t, u.ConfigureTrigger(16000))
	assert.Error(t, u.StartTrigger())
}

func TestDeviceMatchesBySubstring(t *testing.T) {
	assert.True(t, deviceMatches("USB Audio CODEC (hw:1,0)", "USB Audio"))
	assert.True(t, deviceMatches("USB Audio CODEC (hw:1,0)", "USB Audio CODEC (hw:1,0)"))
	assert.False(t, deviceMatches("Built-in Microphone", "USB Audio"))
}

func TestHAL_SingleUnitRouting(t *testing.T) {
	h := &HAL{}

	assert.Equal(t, []adc.UnitID{adc.Unit1}, h.UnitsForPin(0))
	assert.Equal(t, []adc.UnitID{adc.Unit1}, h.UnitsForPin(maxPins-1))
	assert.Nil(t, h.UnitsForPin(maxPins))

	_, err := h.Unit(adc.Unit2)
	assert.ErrorIs(t, err, adc.ErrUnitNotFound)

	assert.ErrorIs(t, h.EnableCoupledMode(true), adc.ErrDualUnits)
	assert.NoError(t, h.EnableCoupledMode(false))
}
