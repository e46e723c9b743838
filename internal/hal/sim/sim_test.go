package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/adcstream/internal/adc"
)

type quietLogger struct{}

func (quietLogger) Debug(msg string, args ...interface{}) {}
func (quietLogger) Info(msg string, args ...interface{})  {}
func (quietLogger) Warn(msg string, args ...interface{})  {}
func (quietLogger) Error(msg string, args ...interface{}) {}

func newTestHAL() *HAL {
	h := NewHALWithDeps(DefaultPinMap(), quietLogger{}, &adc.RealTimeProvider{})
	h.SetManualTrigger(true)
	return h
}

func newTestEngine(h *HAL, pins ...adc.Pin) *adc.Engine {
	return adc.NewEngineWithDeps(h, quietLogger{}, pins...)
}

func config() adc.Config {
	return adc.Config{
		Resolution: 12,
		SampleRate: 1000,
		Samples:    8,
		Buffers:    4,
		SampleTime: adc.SampleTime8_5,
		AutoStart:  true,
	}
}

func TestSim_ManualTriggerDeliversWindows(t *testing.T) {
	h := newTestHAL()
	e := newTestEngine(h, A0)
	t.Cleanup(func() { _ = e.End() })

	require.NoError(t, e.Configure(config()))
	assert.Equal(t, adc.Unit1, e.ID())

	h.Fire(adc.Unit1)
	h.Fire(adc.Unit1)
	require.True(t, e.Available())

	// The ramp fill counts samples monotonically across windows
	b := e.Read()
	assert.Equal(t, adc.Sample(0), b.Data()[0])
	assert.Equal(t, adc.Sample(7), b.Data()[7])
	b.Release()

	b = e.Read()
	assert.Equal(t, adc.Sample(8), b.Data()[0])
	b.Release()
}

func TestSim_ResolutionMasksSamples(t *testing.T) {
	h := newTestHAL()
	e := newTestEngine(h, A0)
	t.Cleanup(func() { _ = e.End() })

	cfg := config()
	cfg.Resolution = 8
	cfg.Samples = 512
	require.NoError(t, e.Configure(cfg))

	h.Fire(adc.Unit1)
	b := e.Read()
	defer b.Release()
	for _, s := range b.Data() {
		assert.LessOrEqual(t, s, adc.Sample(0xFF))
	}
}

func TestSim_InterleavedChannels(t *testing.T) {
	h := newTestHAL()
	e := newTestEngine(h, A0, A1)
	t.Cleanup(func() { _ = e.End() })

	require.NoError(t, e.Configure(config()))
	h.Fire(adc.Unit1)

	b := e.Read()
	defer b.Release()
	require.Equal(t, 2, b.Channels())
	require.Equal(t, 16, b.Size())

	// Channel 1 is offset from channel 0 within each frame
	data := b.Data()
	assert.Equal(t, adc.Sample(0), data[0])
	assert.Equal(t, adc.Sample(1000), data[1])
	assert.Equal(t, adc.Sample(1), data[2])
	assert.Equal(t, adc.Sample(1001), data[3])
}

func TestSim_TimerTriggerProducesData(t *testing.T) {
	h := NewHALWithDeps(DefaultPinMap(), quietLogger{}, &adc.RealTimeProvider{})
	e := newTestEngine(h, A0)
	t.Cleanup(func() { _ = e.End() })

	// 8-sample windows at 16 kHz complete every 0.5 ms
	cfg := config()
	cfg.SampleRate = 16000
	require.NoError(t, e.Configure(cfg))

	deadline := time.After(2 * time.Second)
	for !e.Available() {
		select {
		case <-deadline:
			t.Fatal("timer trigger produced no data")
		case <-time.After(time.Millisecond):
		}
	}

	b := e.Read()
	assert.Equal(t, 8, b.Size())
	assert.False(t, b.Timestamp().IsZero())
	b.Release()

	// Stop is synchronous: no completions arrive afterwards
	require.NoError(t, e.Stop())
	e.Clear()
	time.Sleep(5 * time.Millisecond)
	assert.False(t, e.Available())
}

func TestSim_PinConstraintsDriveUnitChoice(t *testing.T) {
	h := newTestHAL()

	// A4 cannot reach Unit1; the shared unit with A0 is Unit2
	e := newTestEngine(h, A0, A4)
	t.Cleanup(func() { _ = e.End() })
	require.NoError(t, e.Configure(config()))
	assert.Equal(t, adc.Unit2, e.ID())

	// A6 and A7 have no unit in common
	e2 := newTestEngine(h, A6, A7)
	assert.ErrorIs(t, e2.Configure(config()), adc.ErrPinNotMapped)
}

func TestSim_DualModeRunsInLockstep(t *testing.T) {
	h := newTestHAL()

	first := newTestEngine(h, A0)
	second := newTestEngine(h, A1)
	second.SetUnit(adc.Unit2)
	d := adc.NewDualWithDeps(h, first, second, quietLogger{})
	t.Cleanup(func() { _ = d.End() })

	require.NoError(t, d.Begin(config()))

	// One master trigger event completes a window on both units
	h.Fire(adc.Unit1)
	require.True(t, first.Available())
	require.True(t, second.Available())

	b1 := first.Read()
	b2 := second.Read()
	assert.Equal(t, b1.Timestamp(), b2.Timestamp(), "coupled windows share the completion instant")
	b1.Release()
	b2.Release()

	// Firing the slave alone does nothing: its trigger never started
	h.Fire(adc.Unit2)
	assert.False(t, second.Available())

	// After decoupling, the master no longer clocks the slave
	require.NoError(t, d.Stop())
	h.Fire(adc.Unit1)
	assert.False(t, first.Available())
	assert.False(t, second.Available())
}
