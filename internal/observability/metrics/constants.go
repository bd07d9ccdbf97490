// Package metrics provides Prometheus metric collectors for the service.
package metrics

// Histogram bucket parameters shared across metric definitions.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms.
	BucketStart10ms = 0.01
	// BucketFactor2 is the exponential growth factor for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// Label values for lane and failure classification.
const (
	// LaneExact labels the fingerprint search lane.
	LaneExact = "exact"
	// LaneVibe labels the embedding search lane.
	LaneVibe = "vibe"
	// ReasonTimeout labels lane failures caused by the per-lane deadline.
	ReasonTimeout = "timeout"
	// ReasonError labels lane failures caused by anything else.
	ReasonError = "error"
)
