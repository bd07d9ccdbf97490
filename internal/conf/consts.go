// conf/consts.go hard coded constants
package conf

const (
	// SampleRate is the rate audio is decoded to for the embedding model.
	SampleRate = 48000
	// FingerprintSampleRate is the rate audio is decoded to for the olaf
	// fingerprint index and chromaprint dedup.
	FingerprintSampleRate = 16000
	// NumChannels is the channel count all decoded audio is downmixed to.
	NumChannels = 1
)
