package audio

import (
	"encoding/binary"
	"math"
)

// Bytes per sample for the PCM encodings the decoder produces.
const (
	BytesPerF32Sample = 4
	BytesPerS16Sample = 2
)

// PCMDuration computes the duration in seconds of raw PCM data. Duration
// is derived from byte length, so it reflects decoded content rather than
// container metadata.
func PCMDuration(pcm []byte, sampleRate, sampleWidth int) float64 {
	if sampleRate <= 0 || sampleWidth <= 0 {
		return 0
	}
	return float64(len(pcm)) / float64(sampleRate*sampleWidth)
}

// BytesToFloat32 reinterprets f32le PCM bytes as float32 samples.
// Trailing bytes short of a full sample are dropped.
func BytesToFloat32(data []byte) []float32 {
	n := len(data) / BytesPerF32Sample
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*BytesPerF32Sample:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// ExtractWindow slices a time window out of f32le PCM. Bounds are clamped
// to the clip and the returned slice aliases the input, offsets are kept on
// whole sample boundaries so the window never splits a sample.
func ExtractWindow(pcm []byte, startSec, stopSec float64, sampleRate int) []byte {
	if sampleRate <= 0 || stopSec <= startSec {
		return nil
	}

	start := int(startSec*float64(sampleRate)) * BytesPerF32Sample
	stop := int(stopSec*float64(sampleRate)) * BytesPerF32Sample

	if start < 0 {
		start = 0
	}
	if stop > len(pcm) {
		stop = len(pcm)
	}
	if start >= stop {
		return nil
	}
	return pcm[start:stop]
}

// Float32ToS16LE converts float32 samples to s16le PCM bytes. Samples
// outside the int16 range are clamped instead of wrapped.
func Float32ToS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerS16Sample)
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerS16Sample:], uint16(int16(v)))
	}
	return out
}
