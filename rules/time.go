//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// DeferredTimeSince detects deferred calls with time.Since as an argument,
// which measure ~0 because the duration is computed when the defer is
// queued, not when the function returns. Duration metrics around decode,
// inference and lane runs are exactly where this bug hides.
//
// Broken pattern:
//
//	start := time.Now()
//	defer metrics.RecordIngestDuration(time.Since(start).Seconds())
//
// Correct pattern:
//
//	start := time.Now()
//	defer func() { metrics.RecordIngestDuration(time.Since(start).Seconds()) }()
//
// See: https://pkg.go.dev/time#Since
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func()")

	m.Match(
		`defer $fn(time.Since($start).Seconds())`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func()")

	m.Match(
		`defer $fn(time.Since($start).Milliseconds())`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func()")

	m.Match(
		`defer $fn($*_, time.Since($start), $*_)`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func()")
}

// TimeAfterInLoop detects time.After inside for loops. Each iteration
// allocates a new timer that is not collected until it fires, so a tight
// loop with a long timeout pins memory for the whole timeout.
//
// Problematic pattern:
//
//	for {
//	    select {
//	    case msg := <-ch:
//	        handle(msg)
//	    case <-time.After(time.Minute):
//	        return
//	    }
//	}
//
// Correct pattern:
//
//	timer := time.NewTimer(time.Minute)
//	defer timer.Stop()
//	for {
//	    select {
//	    case msg := <-ch:
//	        handle(msg)
//	    case <-timer.C:
//	        return
//	    }
//	}
//
// See: https://pkg.go.dev/time#After
func TimeAfterInLoop(m dsl.Matcher) {
	m.Match(
		`for { select { case $*_: $*_; case <-time.After($d): $*_ } }`,
	).
		Report("time.After($d) in a loop allocates a timer per iteration; hoist a time.NewTimer out of the loop")

	m.Match(
		`for $cond { select { case $*_: $*_; case <-time.After($d): $*_ } }`,
	).
		Report("time.After($d) in a loop allocates a timer per iteration; hoist a time.NewTimer out of the loop")
}
