// orchestrator.go: parallel lane execution with per-lane deadlines and
// error isolation.
package search

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/soundprint/soundprint/internal/conf"
	"github.com/soundprint/soundprint/internal/errors"
	"github.com/soundprint/soundprint/internal/observability/metrics"
)

// Default per-lane budgets. The end-to-end p95 target is five seconds:
// roughly one second of decode plus the slower lane.
const (
	defaultExactTimeout = 3 * time.Second
	defaultVibeTimeout  = 4 * time.Second
)

// Sentinel errors the HTTP layer maps onto status codes.
var (
	// ErrSearchTimeout means every requested lane hit its deadline.
	ErrSearchTimeout = errors.NewStd("search timed out")

	// ErrSearchUnavailable means every requested lane failed and at
	// least one failure was not a timeout.
	ErrSearchUnavailable = errors.NewStd("search unavailable")
)

// Mode selects which lanes a search runs.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeVibe  Mode = "vibe"
	ModeBoth  Mode = "both"
)

// ParseMode validates a mode string from a request. Empty defaults to
// ModeBoth.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBoth, nil
	case ModeExact, ModeVibe, ModeBoth:
		return Mode(s), nil
	default:
		return "", errors.Newf("invalid search mode %q", s).
			Component("search").
			Category(errors.CategoryValidation).
			Build()
	}
}

// Result is the combined outcome of one search request.
type Result struct {
	RequestID       string       `json:"request_id"`
	QueryDurationMs float64      `json:"query_duration_ms"`
	ExactMatches    []ExactMatch `json:"exact_matches"`
	VibeMatches     []VibeMatch  `json:"vibe_matches"`
	ModeUsed        Mode         `json:"mode_used"`
}

// exactRunner and vibeRunner let tests substitute the lanes.
type exactRunner interface {
	Run(ctx context.Context, pcm16k []byte, maxResults int) ([]ExactMatch, error)
}

type vibeRunner interface {
	Run(ctx context.Context, pcm48k []byte, maxResults int) ([]VibeMatch, error)
}

// Orchestrator runs the requested lanes under their deadline budgets. In
// both mode the lanes run in parallel on independent contexts, so one
// lane failing or timing out never cancels the other.
type Orchestrator struct {
	exact        exactRunner
	vibe         vibeRunner
	exactTimeout time.Duration
	vibeTimeout  time.Duration
	metrics      *metrics.SearchMetrics
}

// NewOrchestrator wires the two lanes with timeouts from settings,
// falling back to the default budgets when unset.
func NewOrchestrator(exact *ExactLane, vibe *VibeLane, settings *conf.Settings) *Orchestrator {
	exactTimeout := settings.Search.ExactTimeout
	if exactTimeout <= 0 {
		exactTimeout = defaultExactTimeout
	}
	vibeTimeout := settings.Search.VibeTimeout
	if vibeTimeout <= 0 {
		vibeTimeout = defaultVibeTimeout
	}

	return &Orchestrator{
		exact:        exact,
		vibe:         vibe,
		exactTimeout: exactTimeout,
		vibeTimeout:  vibeTimeout,
	}
}

// SetMetrics attaches search metrics. Must be called before the
// orchestrator handles concurrent requests.
func (o *Orchestrator) SetMetrics(m *metrics.SearchMetrics) {
	o.metrics = m
}

// laneOutcome carries one lane's result out of its goroutine.
type laneOutcome struct {
	exact   []ExactMatch
	vibe    []VibeMatch
	err     error
	timeout bool
}

// Search runs the requested lanes and assembles the response. Single-lane
// modes surface the lane's failure directly; in both mode one surviving
// lane is a success and the failed lane simply contributes no matches.
func (o *Orchestrator) Search(ctx context.Context, pcm16k, pcm48k []byte, mode Mode, maxResults int) (*Result, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordSearch(string(mode))
	}

	exactMatches := []ExactMatch{}
	vibeMatches := []VibeMatch{}

	switch mode {
	case ModeExact:
		outcome := o.runExact(ctx, pcm16k, maxResults)
		if outcome.err != nil {
			return nil, classifySingleLane(outcome)
		}
		exactMatches = append(exactMatches, outcome.exact...)

	case ModeVibe:
		outcome := o.runVibe(ctx, pcm48k, maxResults)
		if outcome.err != nil {
			return nil, classifySingleLane(outcome)
		}
		vibeMatches = append(vibeMatches, outcome.vibe...)

	default:
		exactCh := make(chan laneOutcome, 1)
		vibeCh := make(chan laneOutcome, 1)
		go func() { exactCh <- o.runExact(ctx, pcm16k, maxResults) }()
		go func() { vibeCh <- o.runVibe(ctx, pcm48k, maxResults) }()
		exactOut := <-exactCh
		vibeOut := <-vibeCh

		if exactOut.err != nil && vibeOut.err != nil {
			if exactOut.timeout && vibeOut.timeout {
				return nil, fmt.Errorf("%w: both lanes timed out", ErrSearchTimeout)
			}
			return nil, fmt.Errorf("%w: both lanes failed", ErrSearchUnavailable)
		}
		if exactOut.err == nil {
			exactMatches = append(exactMatches, exactOut.exact...)
		}
		if vibeOut.err == nil {
			vibeMatches = append(vibeMatches, vibeOut.vibe...)
		}
	}

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000

	return &Result{
		RequestID:       uuid.NewString(),
		QueryDurationMs: math.Round(elapsedMs*100) / 100,
		ExactMatches:    exactMatches,
		VibeMatches:     vibeMatches,
		ModeUsed:        mode,
	}, nil
}

// runExact executes the exact lane under its deadline.
func (o *Orchestrator) runExact(ctx context.Context, pcm16k []byte, maxResults int) laneOutcome {
	laneCtx, cancel := context.WithTimeout(ctx, o.exactTimeout)
	defer cancel()

	start := time.Now()
	matches, err := o.exact.Run(laneCtx, pcm16k, maxResults)
	o.recordLane(metrics.LaneExact, start, laneCtx, err)
	if err != nil {
		timeout := isLaneTimeout(laneCtx, err)
		if timeout {
			searchLogger.Warn("exact lane timed out", "timeout", o.exactTimeout)
		} else {
			searchLogger.Error("exact lane failed", "error", err)
		}
		return laneOutcome{err: err, timeout: timeout}
	}
	return laneOutcome{exact: matches}
}

// runVibe executes the vibe lane under its deadline.
func (o *Orchestrator) runVibe(ctx context.Context, pcm48k []byte, maxResults int) laneOutcome {
	laneCtx, cancel := context.WithTimeout(ctx, o.vibeTimeout)
	defer cancel()

	start := time.Now()
	matches, err := o.vibe.Run(laneCtx, pcm48k, maxResults)
	o.recordLane(metrics.LaneVibe, start, laneCtx, err)
	if err != nil {
		timeout := isLaneTimeout(laneCtx, err)
		if timeout {
			searchLogger.Warn("vibe lane timed out", "timeout", o.vibeTimeout)
		} else {
			searchLogger.Error("vibe lane failed", "error", err)
		}
		return laneOutcome{err: err, timeout: timeout}
	}
	return laneOutcome{vibe: matches}
}

func (o *Orchestrator) recordLane(lane string, start time.Time, laneCtx context.Context, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLaneDuration(lane, time.Since(start).Seconds())
	if err != nil {
		reason := metrics.ReasonError
		if isLaneTimeout(laneCtx, err) {
			reason = metrics.ReasonTimeout
		}
		o.metrics.RecordLaneFailure(lane, reason)
	}
}

// isLaneTimeout reports whether a lane failure was caused by its
// deadline. Subprocess wrappers kill the child on deadline but return the
// exec error, so the lane context is checked as well as the error chain.
func isLaneTimeout(laneCtx context.Context, err error) bool {
	if errors.IsTimeout(err) {
		return true
	}
	return errors.Is(laneCtx.Err(), context.DeadlineExceeded)
}

// classifySingleLane maps a lane failure in single-lane mode onto the
// sentinel errors.
func classifySingleLane(outcome laneOutcome) error {
	if outcome.timeout {
		return fmt.Errorf("%w: %w", ErrSearchTimeout, outcome.err)
	}
	return fmt.Errorf("%w: %w", ErrSearchUnavailable, outcome.err)
}
