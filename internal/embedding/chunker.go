// Package embedding cuts 48 kHz PCM into overlapping windows and turns
// them into fixed-size vectors with a TensorFlow Lite audio embedding
// model. A single inference slot serializes model access between ingest
// and search.
package embedding

import (
	"github.com/soundprint/soundprint/internal/audio"
	"github.com/soundprint/soundprint/internal/conf"
)

// Chunking parameters. The window matches the embedding model's native
// input length, the hop gives 50% overlap.
const (
	ChunkWindowSec = 10.0
	ChunkHopSec    = 5.0
	MinChunkSec    = 1.0
)

// Chunk is one embedding window cut from a track.
type Chunk struct {
	Samples     []float32 // zero-padded to the full window
	OffsetSec   float64   // chunk start within the track, seconds
	Index       int       // sequential chunk index
	DurationSec float64   // audio duration before padding, seconds
}

// ChunkPCM cuts 48 kHz mono f32le PCM into overlapping windows. The last
// window is zero-padded to full length; a trailing residue shorter than
// MinChunkSec is dropped.
func ChunkPCM(pcm48kF32LE []byte) []Chunk {
	samples := audio.BytesToFloat32(pcm48kF32LE)
	totalSamples := len(samples)
	if totalSamples == 0 {
		return nil
	}

	windowSamples := int(ChunkWindowSec * conf.SampleRate)
	hopSamples := int(ChunkHopSec * conf.SampleRate)

	var chunks []Chunk
	for start, index := 0, 0; start < totalSamples; start, index = start+hopSamples, index+1 {
		end := min(start+windowSamples, totalSamples)
		chunkSamples := end - start
		duration := float64(chunkSamples) / conf.SampleRate

		if duration < MinChunkSec {
			break
		}

		data := make([]float32, windowSamples)
		copy(data, samples[start:end])

		chunks = append(chunks, Chunk{
			Samples:     data,
			OffsetSec:   float64(start) / conf.SampleRate,
			Index:       index,
			DurationSec: duration,
		})
	}

	return chunks
}
