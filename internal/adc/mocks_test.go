package adc

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockHAL mocks HAL
type MockHAL struct {
	mock.Mock
}

func (m *MockHAL) Unit(id UnitID) (Driver, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Driver), args.Error(1)
}

func (m *MockHAL) UnitsForPin(pin Pin) []UnitID {
	args := m.Called(pin)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]UnitID)
}

func (m *MockHAL) EnableCoupledMode(enable bool) error {
	args := m.Called(enable)
	return args.Error(0)
}

// MockDriver mocks Driver
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) ConfigureTransfer(channels int, dir TransferDirection) error {
	args := m.Called(channels, dir)
	return args.Error(0)
}

func (m *MockDriver) ConfigureAcquisition(resolution int, pins []Pin, channels int, st SampleTime) error {
	args := m.Called(resolution, pins, channels, st)
	return args.Error(0)
}

func (m *MockDriver) ApplyPinMapping(pin Pin) error {
	args := m.Called(pin)
	return args.Error(0)
}

func (m *MockDriver) StartTransfer(target []Sample) error {
	args := m.Called(target)
	return args.Error(0)
}

func (m *MockDriver) EnableDoubleBuffer(target0, target1 []Sample) {
	m.Called(target0, target1)
}

func (m *MockDriver) UpdateNextTarget(target []Sample) {
	m.Called(target)
}

func (m *MockDriver) CurrentTarget() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockDriver) StopTransfer() {
	m.Called()
}

func (m *MockDriver) ConfigureTrigger(rate uint32) error {
	args := m.Called(rate)
	return args.Error(0)
}

func (m *MockDriver) StartTrigger() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDriver) StopTrigger() {
	m.Called()
}

func (m *MockDriver) InvalidateCache(data []Sample) {
	m.Called(data)
}

// MockLogger mocks Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.Called(append([]interface{}{msg}, args...)...)
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.Called(append([]interface{}{msg}, args...)...)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.Called(append([]interface{}{msg}, args...)...)
}

func (m *MockLogger) Error(msg string, args ...interface{}) {
	m.Called(append([]interface{}{msg}, args...)...)
}

// MockTimeProvider mocks TimeProvider
type MockTimeProvider struct {
	mock.Mock
}

func (m *MockTimeProvider) Now() time.Time {
	args := m.Called()
	return args.Get(0).(time.Time)
}

func (m *MockTimeProvider) Sleep(d time.Duration) {
	m.Called(d)
}

// nopLogger discards everything; used where log output is irrelevant.
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}

// recordingLogger counts calls per level for assertions on diagnostics.
type recordingLogger struct {
	debugs int
	infos  int
	warns  int
	errors int
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.debugs++ }
func (l *recordingLogger) Info(msg string, args ...interface{})  { l.infos++ }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.warns++ }
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.errors++ }
