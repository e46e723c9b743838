// Package export writes acquired sample data to WAV files so captures
// can be inspected in ordinary audio tools.
package export

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/adcstream/internal/adc"
)

// wavBitDepth is the container bit depth. Conversion results at lower
// resolutions are scaled up to full range before encoding.
const wavBitDepth = 16

// SaveBuffer writes one sample buffer to a WAV file.
func SaveBuffer(path string, buf *adc.SampleBuffer, sampleRate uint32, resolution int) error {
	return encode(path, buf.Data(), sampleRate, resolution, buf.Channels())
}

// SavePCM writes little-endian 16-bit PCM, e.g. drained from a
// recorder ring, to a WAV file.
func SavePCM(path string, pcm []byte, sampleRate uint32, resolution, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("PCM data length %d is not sample aligned", len(pcm))
	}
	samples := make([]adc.Sample, len(pcm)/2)
	for i := range samples {
		samples[i] = adc.Sample(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return encode(path, samples, sampleRate, resolution, channels)
}

func encode(path string, data []adc.Sample, sampleRate uint32, resolution, channels int) error {
	if resolution <= 0 || resolution > wavBitDepth {
		return fmt.Errorf("%w: cannot encode %d bit samples", adc.ErrInvalidResolution, resolution)
	}
	if channels <= 0 {
		return adc.ErrNoChannels
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer outFile.Close()

	enc := wav.NewEncoder(outFile, int(sampleRate), wavBitDepth, channels, 1)

	if err := enc.Write(&audio.IntBuffer{
		Data:   samplesToInts(data, resolution),
		Format: &audio.Format{SampleRate: int(sampleRate), NumChannels: channels},
	}); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}

	return enc.Close()
}

// samplesToInts converts unipolar converter counts to signed 16-bit PCM:
// scaled to full range, then centered around zero.
func samplesToInts(data []adc.Sample, resolution int) []int {
	shift := wavBitDepth - resolution
	ints := make([]int, len(data))
	for i, s := range data {
		ints[i] = int(uint32(s)<<shift) - 1<<(wavBitDepth-1)
	}
	return ints
}
