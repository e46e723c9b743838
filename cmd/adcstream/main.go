// Command adcstream captures a sample stream from one of the
// acquisition backends and writes it to a WAV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tphakala/adcstream/internal/adc"
	"github.com/tphakala/adcstream/internal/export"
	"github.com/tphakala/adcstream/internal/hal/serialadc"
	"github.com/tphakala/adcstream/internal/hal/sim"
	"github.com/tphakala/adcstream/internal/hal/soundcard"
	"github.com/tphakala/adcstream/internal/record"
)

func main() {
	var (
		backend    = flag.String("backend", "sim", "acquisition backend: sim, soundcard or serial")
		device     = flag.String("device", "", "device name (soundcard) or path (serial)")
		pinList    = flag.String("pins", "0", "comma-separated pin numbers to sample")
		rate       = flag.Uint("rate", 16000, "sample rate in Hz")
		resolution = flag.Uint("resolution", 12, "conversion resolution in bits")
		samples    = flag.Int("samples", 512, "samples per channel per buffer")
		buffers    = flag.Int("buffers", 8, "buffers in the pool")
		duration   = flag.Duration("duration", 5*time.Second, "capture duration")
		out        = flag.String("out", "capture.wav", "output WAV file")
	)
	flag.Parse()

	if err := run(*backend, *device, *pinList, uint32(*rate), int(*resolution),
		*samples, *buffers, *duration, *out); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(backend, device, pinList string, rate uint32, resolution, samples, buffers int,
	duration time.Duration, out string) error {
	pins, err := parsePins(pinList)
	if err != nil {
		return err
	}

	hal, closeHAL, err := openBackend(backend, device)
	if err != nil {
		return err
	}
	defer closeHAL()

	engine := adc.NewEngine(hal, pins...)
	if err := engine.Configure(adc.Config{
		Resolution: resolution,
		SampleRate: rate,
		Samples:    samples,
		Buffers:    buffers,
		SampleTime: adc.SampleTime8_5,
		AutoStart:  true,
	}); err != nil {
		return fmt.Errorf("failed to configure engine: %w", err)
	}
	defer engine.End()

	// The recorder ring holds the whole capture plus slack.
	recorder := record.NewRecorder(engine, rate, len(pins), duration+time.Second)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := recorder.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
	if err := engine.Stop(); err != nil {
		return fmt.Errorf("failed to stop engine: %w", err)
	}
	recorder.Stop()

	stats := recorder.Stats()
	fmt.Printf("Captured %d windows, %d samples, %d gaps, %d bytes dropped\n",
		stats.Windows, stats.Samples, stats.Gaps, stats.DroppedBytes)

	pcm := make([]byte, recorder.Buffered())
	if _, err := recorder.Read(pcm); err != nil {
		return fmt.Errorf("failed to drain recorder: %w", err)
	}
	if err := export.SavePCM(out, pcm, rate, resolution, len(pins)); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Wrote %s\n", out)
	return nil
}

// openBackend builds the requested HAL and its cleanup function.
func openBackend(backend, device string) (adc.HAL, func(), error) {
	switch backend {
	case "sim":
		return sim.NewHAL(), func() {}, nil
	case "soundcard":
		h, err := soundcard.NewHALWithDeps(device, &adc.StandardLogger{}, &adc.RealTimeProvider{})
		if err != nil {
			return nil, nil, err
		}
		return h, func() {
			if err := h.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "⚠️ Error closing audio backend: %v\n", err)
			}
		}, nil
	case "serial":
		if device == "" {
			return nil, nil, fmt.Errorf("serial backend needs -device")
		}
		h, err := serialadc.NewHAL(device)
		if err != nil {
			return nil, nil, err
		}
		return h, func() {
			if err := h.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "⚠️ Error closing serial port: %v\n", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

func parsePins(list string) ([]adc.Pin, error) {
	var pins []adc.Pin
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid pin %q", field)
		}
		pins = append(pins, adc.Pin(n))
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("no pins given")
	}
	return pins, nil
}
