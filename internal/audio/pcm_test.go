package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		byteLen     int
		sampleRate  int
		sampleWidth int
		want        float64
	}{
		{"one second f32le at 16k", 64000, 16000, 4, 1.0},
		{"one second f32le at 48k", 192000, 48000, 4, 1.0},
		{"one second s16le at 16k", 32000, 16000, 2, 1.0},
		{"half second", 32000, 16000, 4, 0.5},
		{"empty", 0, 16000, 4, 0.0},
		{"zero sample rate", 64000, 0, 4, 0.0},
		{"zero sample width", 64000, 16000, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := PCMDuration(make([]byte, tt.byteLen), tt.sampleRate, tt.sampleWidth)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func f32leBytes(samples ...float32) []byte {
	out := make([]byte, len(samples)*BytesPerF32Sample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*BytesPerF32Sample:], math.Float32bits(s))
	}
	return out
}

func TestBytesToFloat32(t *testing.T) {
	t.Parallel()

	want := []float32{0.0, 1.0, -1.0, 0.25, -0.5}
	got := BytesToFloat32(f32leBytes(want...))

	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestBytesToFloat32DropsPartialSample(t *testing.T) {
	t.Parallel()

	data := f32leBytes(0.5, -0.5)
	data = append(data, 0x01, 0x02)

	got := BytesToFloat32(data)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[0], 1e-9)
	assert.InDelta(t, -0.5, got[1], 1e-9)
}

func TestBytesToFloat32Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, BytesToFloat32(nil))
	assert.Empty(t, BytesToFloat32([]byte{0x01, 0x02, 0x03}))
}

func TestExtractWindow(t *testing.T) {
	t.Parallel()

	// Ten seconds of f32le at 100 Hz keeps offsets easy to reason about.
	const rate = 100
	pcm := make([]byte, 10*rate*BytesPerF32Sample)

	tests := []struct {
		name     string
		start    float64
		stop     float64
		wantSecs float64
	}{
		{"full clip", 0.0, 10.0, 10.0},
		{"interior window", 1.5, 5.0, 3.5},
		{"stop clamped to clip end", 8.0, 12.0, 2.0},
		{"start clamped to zero", -1.0, 2.0, 3.0},
		{"window past clip end", 11.0, 14.5, 0.0},
		{"inverted bounds", 5.0, 2.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractWindow(pcm, tt.start, tt.stop, rate)
			assert.InDelta(t, tt.wantSecs, PCMDuration(got, rate, BytesPerF32Sample), 1e-9)
		})
	}
}

func TestExtractWindowSampleAligned(t *testing.T) {
	t.Parallel()

	pcm := f32leBytes(0.1, 0.2, 0.3, 0.4)
	got := ExtractWindow(pcm, 0.25, 0.75, 4)

	require.Len(t, got, 2*BytesPerF32Sample)
	samples := BytesToFloat32(got)
	assert.InDelta(t, 0.2, samples[0], 1e-6)
	assert.InDelta(t, 0.3, samples[1], 1e-6)
}

func TestFloat32ToS16LE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"silence", 0.0, 0},
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32767},
		{"half scale", 0.5, 16383},
		{"clamps above range", 2.0, 32767},
		{"clamps below range", -2.0, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := Float32ToS16LE([]float32{tt.sample})
			require.Len(t, out, BytesPerS16Sample)
			got := int16(binary.LittleEndian.Uint16(out)) //nolint:gosec // 16-bit roundtrip
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloat32ToS16LELength(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 1600)
	out := Float32ToS16LE(samples)
	assert.Len(t, out, 1600*BytesPerS16Sample)
}
