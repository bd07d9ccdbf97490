package chromaprint

import (
	"math/bits"
	"strconv"
	"strings"
)

// Similarity scores two raw fingerprints between 0.0 and 1.0. The
// overlapping prefix is compared by bitwise Hamming distance over the
// 32-bit subfingerprints, then scaled by the length ratio so a short
// clip cannot fully match a long track. Unparseable or empty
// fingerprints score 0.0.
func Similarity(fp1, fp2 string) float64 {
	arr1, ok := parseRawFingerprint(fp1)
	if !ok {
		return 0.0
	}
	arr2, ok := parseRawFingerprint(fp2)
	if !ok {
		return 0.0
	}

	minLen := min(len(arr1), len(arr2))
	if minLen == 0 {
		return 0.0
	}

	matchingBits := 0
	totalBits := minLen * 32
	for i := 0; i < minLen; i++ {
		matchingBits += 32 - bits.OnesCount32(arr1[i]^arr2[i])
	}

	maxLen := max(len(arr1), len(arr2))
	lengthPenalty := float64(minLen) / float64(maxLen)

	return (float64(matchingBits) / float64(totalBits)) * lengthPenalty
}

// parseRawFingerprint parses a comma-separated subfingerprint list. fpcalc
// emits signed 32-bit values with -signed, older stored fingerprints may
// carry the unsigned form, both reduce to the same bit patterns.
func parseRawFingerprint(fp string) ([]uint32, bool) {
	if fp == "" {
		return nil, false
	}
	parts := strings.Split(fp, ",")
	out := make([]uint32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = uint32(v & 0xFFFFFFFF) //nolint:gosec // masked to 32 bits
	}
	return out, true
}
