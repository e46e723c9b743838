package adc

import (
	"log"
	"time"
)

// TimeProvider abstracts the clock. Drivers stamp completion events
// with it, so tests can drive the pipeline with deterministic
// timestamps.
type TimeProvider interface {
	Now() time.Time
	Sleep(duration time.Duration)
}

// RealTimeProvider is the wall-clock implementation.
type RealTimeProvider struct{}

func (t *RealTimeProvider) Now() time.Time {
	return time.Now()
}

func (t *RealTimeProvider) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Logger abstracts the logging backend. Debug traces per-window events
// such as individual reads, Info covers lifecycle transitions
// (configure, start, stop), Warn flags recoverable stream problems like
// discontinuities, and Error reports misuse and driver failures.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// StandardLogger writes through the standard library's log package.
type StandardLogger struct{}

func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	log.Printf("[DEBUG] "+msg, args...)
}

func (l *StandardLogger) Info(msg string, args ...interface{}) {
	log.Printf("[INFO] "+msg, args...)
}

func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	log.Printf("[WARN] "+msg, args...)
}

func (l *StandardLogger) Error(msg string, args ...interface{}) {
	log.Printf("[ERROR] "+msg, args...)
}
