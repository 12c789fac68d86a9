// Package reg implements a binary-trial random event generator: it samples
// byte-valued randomness, reduces each sample vector to a bit-count statistic,
// raises events when a statistically derived action boundary is exceeded, and
// persists the resulting time series as a flat trial log that the analysis
// side can replay.
package reg

import (
	"fmt"
	"math/bits"
)

// Default run parameters. These match the documented header fallbacks: a
// decoder that finds a truncated header must assume exactly these values.
const (
	DefaultColorZ      = 1.65
	DefaultRotZ        = 1.85
	DefaultSampleWidth = 250
	DefaultHalo        = true
)

// RunParams holds the immutable parameters of one generation run. They are
// written into the log header and drive all derived thresholds.
type RunParams struct {
	ColorZ      float64 `json:"color_z"`
	RotZ        float64 `json:"rot_z"`
	SampleWidth int     `json:"sample_width"` // samples (bytes) per trial; bits per trial = 8*SampleWidth
	UseTrueRNG  bool    `json:"use_true_rng"`
	Halo        bool    `json:"halo"`
	Turbo       bool    `json:"turbo"`
}

// DefaultParams returns the canonical parameter set used when a caller or a
// decoded header supplies nothing.
func DefaultParams() RunParams {
	return RunParams{
		ColorZ:      DefaultColorZ,
		RotZ:        DefaultRotZ,
		SampleWidth: DefaultSampleWidth,
		Halo:        DefaultHalo,
	}
}

// Validate rejects parameter sets that cannot produce a well-defined run.
// Non-positive z values are degenerate but permitted; a non-positive sample
// width is not.
func (p RunParams) Validate() error {
	if p.SampleWidth <= 0 {
		return fmt.Errorf("sample width must be positive, got %d: %w", p.SampleWidth, ErrInvalidParams)
	}
	return nil
}

// EventKind identifies which action boundary a trial exceeded.
type EventKind string

const (
	EventColor    EventKind = "color"
	EventRotation EventKind = "rotation"
)

// Event records a single boundary crossing. At most one event of each kind is
// raised per trial, stamped with the trial's timestamp.
type Event struct {
	Kind      EventKind `json:"type"`
	Timestamp int64     `json:"timestamp"` // milliseconds since epoch
}

// Trial is one sampled vector reduced to its bit-count statistic. Trials are
// immutable once produced and appended to a run in timestamp order.
type Trial struct {
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Values    []byte `json:"values"`
	BitSum    int    `json:"bit_sum"`
	Turbo     bool   `json:"turbo"`
}

// EventCounts tallies trials and events over a run or an analysed log.
type EventCounts struct {
	Color    int `json:"color_events"`
	Rotation int `json:"rotation_events"`
	Trials   int `json:"qbyte_lines"`
}

// TrialResult is one element of a streaming run: enough to follow the run
// live without shipping the full sample vector.
type TrialResult struct {
	Iteration int     `json:"iteration"`
	Timestamp int64   `json:"timestamp"`
	BitSum    int     `json:"bit_sum"`
	Events    []Event `json:"events"`
	Values    []int   `json:"values"` // first PreviewValues samples only
}

// PreviewValues bounds the per-trial sample preview carried by TrialResult.
const PreviewValues = 10

// Summary is the full result of analysing a run, either live (generation
// side) or from a persisted log. The four series are index-aligned.
type Summary struct {
	Params              RunParams      `json:"parameters"`
	Stats               ThresholdStats `json:"statistics"`
	Events              EventCounts    `json:"events"`
	Timestamps          []int64        `json:"timestamps"`
	BitSums             []int          `json:"bit_sums"`
	CumulativeDeviation []float64      `json:"cumulative_deviation"`
	ConfidenceEnvelope  []float64      `json:"confidence_envelope"`
}

// BitSum returns the total population count across the sample vector. This is
// the single statistic each trial reduces to: under a fair source it is
// Binomial(8*len(values), 0.5) distributed.
func BitSum(values []byte) int {
	sum := 0
	for _, v := range values {
		sum += bits.OnesCount8(v)
	}
	return sum
}
