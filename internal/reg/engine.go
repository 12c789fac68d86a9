package reg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/qbyte.report/internal/monitoring"
	"github.com/banshee-data/qbyte.report/internal/timeutil"
)

// DefaultTrialDelay is the inter-trial throttle emulating a real-time entropy
// device. Policy only: callers may run with zero delay.
const DefaultTrialDelay = 100 * time.Millisecond

// DefaultRemarks labels runs started without an explicit remark.
const DefaultRemarks = "API"

// SessionConfig configures one generation run.
type SessionConfig struct {
	Params    RunParams
	OutputDir string
	Remarks   string        // free-form run label, part of the log file name
	Delay     time.Duration // pause between trials; 0 disables throttling
	Clock     timeutil.Clock
	Sampler   Sampler
}

// Session is one generation run: it owns the trial log exclusively, drives
// the sampler, classifies events against the precomputed boundaries and
// keeps its tallies consistent with what has actually been persisted.
// Sessions are not safe for concurrent use; both run modes are driven from a
// single caller.
type Session struct {
	params  RunParams
	stats   ThresholdStats
	sampler Sampler
	clock   timeutil.Clock
	delay   time.Duration

	log     *LogWriter
	cmtPath string

	startMillis int64
	iteration   int
	counts      EventCounts
	timestamps  []int64
	bitSums     []int
}

// NewSession validates the parameters, derives the action boundaries and
// creates the run's log and companion comment files. The run is named by its
// start time: QB_<unix>_<remarks>.txt.
func NewSession(cfg SessionConfig) (*Session, error) {
	stats, err := ComputeThresholds(cfg.Params)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewPseudoSampler(uint64(clock.Now().UnixNano()))
	}
	remarks := cfg.Remarks
	if remarks == "" {
		remarks = DefaultRemarks
	}
	// Remarks become part of the log file name; a separator would let a
	// caller-supplied label escape the output directory.
	if strings.ContainsAny(remarks, `/\`) || remarks != filepath.Base(remarks) {
		return nil, fmt.Errorf("remarks %q must not contain path separators: %w", remarks, ErrInvalidParams)
	}

	start := clock.Now().UnixMilli()
	base := fmt.Sprintf("QB_%d_%s", start/1000, remarks)
	logPath := filepath.Join(cfg.OutputDir, base+".txt")
	cmtPath := filepath.Join(cfg.OutputDir, base+"_C.txt")

	w, err := CreateLog(logPath, cfg.Params)
	if err != nil {
		return nil, err
	}

	// The companion file is free-form; seed it with the run label so a
	// human browsing the data directory can tell runs apart.
	if err := os.WriteFile(cmtPath, []byte(remarks+"\n"), 0644); err != nil {
		w.Close()
		os.Remove(logPath)
		return nil, fmt.Errorf("failed to create comment file: %w", err)
	}

	s := &Session{
		params:      cfg.Params,
		stats:       stats,
		sampler:     sampler,
		clock:       clock,
		delay:       cfg.Delay,
		log:         w,
		cmtPath:     cmtPath,
		startMillis: start,
	}
	monitoring.Logf("session %s: %s", base, stats)
	return s, nil
}

// step runs exactly one trial: sample, reduce, persist, classify. A sampler
// failure is retried once; a persistence failure aborts without counting the
// trial. No suspension point exists inside this method.
func (s *Session) step() (TrialResult, error) {
	values, err := s.sampler.Sample(s.params.SampleWidth)
	if err != nil {
		monitoring.Logf("sampler error, retrying: %v", err)
		values, err = s.sampler.Sample(s.params.SampleWidth)
		if err != nil {
			return TrialResult{}, fmt.Errorf("sampler failed after retry (%v): %w", err, ErrSourceUnavailable)
		}
	}

	trial := Trial{
		Timestamp: s.clock.Now().UnixMilli(),
		Values:    values,
		BitSum:    BitSum(values),
		Turbo:     s.params.Turbo,
	}

	if err := s.log.AppendTrial(trial); err != nil {
		return TrialResult{}, err
	}
	s.counts.Trials++
	s.timestamps = append(s.timestamps, trial.Timestamp)
	s.bitSums = append(s.bitSums, trial.BitSum)

	res := TrialResult{
		Iteration: s.iteration,
		Timestamp: trial.Timestamp,
		BitSum:    trial.BitSum,
		Events:    []Event{},
		Values:    previewValues(values),
	}
	s.iteration++

	// Strictly "exceeds": a bit sum equal to the boundary is not an event.
	if trial.BitSum > s.stats.ColorBoundary {
		e := Event{Kind: EventColor, Timestamp: trial.Timestamp}
		if err := s.log.AppendEvent(e); err != nil {
			return TrialResult{}, err
		}
		s.counts.Color++
		res.Events = append(res.Events, e)
	}
	if trial.BitSum > s.stats.RotationBoundary {
		e := Event{Kind: EventRotation, Timestamp: trial.Timestamp}
		if err := s.log.AppendEvent(e); err != nil {
			return TrialResult{}, err
		}
		s.counts.Rotation++
		res.Events = append(res.Events, e)
	}
	return res, nil
}

// RunBounded runs exactly n trials synchronously and returns the run summary,
// equivalent to analysing the produced log. The log is flushed before
// returning on every path.
func (s *Session) RunBounded(ctx context.Context, n int) (*Summary, error) {
	if n < 0 {
		return nil, fmt.Errorf("iteration count must be non-negative, got %d: %w", n, ErrInvalidParams)
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			s.flush()
			return nil, err
		}
		if _, err := s.step(); err != nil {
			s.flush()
			return nil, err
		}
		if i < n-1 {
			if err := s.wait(ctx); err != nil {
				s.flush()
				return nil, err
			}
		}
	}
	if err := s.log.Sync(); err != nil {
		return nil, err
	}
	return s.Summary(), nil
}

// Stream runs trials until the context is cancelled, sending one TrialResult
// per completed trial. Cancellation is observed between trials only, so the
// log never ends on a partial record; the channel is closed and the log
// flushed on every exit path.
func (s *Session) Stream(ctx context.Context) <-chan TrialResult {
	ch := make(chan TrialResult)
	go func() {
		defer close(ch)
		defer s.flush()

		for {
			if ctx.Err() != nil {
				return
			}
			res, err := s.step()
			if err != nil {
				monitoring.Logf("streaming run aborted after %d trials: %v", s.counts.Trials, err)
				return
			}
			select {
			case ch <- res:
			case <-ctx.Done():
				return
			}
			if err := s.wait(ctx); err != nil {
				return
			}
		}
	}()
	return ch
}

// wait applies the inter-trial throttle, returning early on cancellation.
func (s *Session) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) flush() {
	if err := s.log.Sync(); err != nil && !errors.Is(err, ErrLogClosed) {
		monitoring.Logf("failed to flush trial log %s: %v", s.log.Path(), err)
	}
}

// Summary builds the run summary from the session's in-memory series, using
// the same formulas the analysis side applies to a decoded log.
func (s *Session) Summary() *Summary {
	sum := &Summary{
		Params:              s.params,
		Stats:               s.stats,
		Events:              s.counts,
		Timestamps:          append([]int64{}, s.timestamps...),
		BitSums:             append([]int{}, s.bitSums...),
		CumulativeDeviation: make([]float64, 0, len(s.bitSums)),
		ConfidenceEnvelope:  make([]float64, 0, len(s.bitSums)),
	}

	expected := 4 * float64(s.params.SampleWidth)
	perTrialVar := 4 * float64(s.params.SampleWidth) * 0.25
	cumSum := 0.0
	for i, b := range s.bitSums {
		cumSum += float64(b)
		n := float64(i + 1)
		sum.CumulativeDeviation = append(sum.CumulativeDeviation, cumSum-expected*n)
		sum.ConfidenceEnvelope = append(sum.ConfidenceEnvelope, 1.96*math.Sqrt(perTrialVar*n))
	}
	return sum
}

// Params returns the run's immutable parameters.
func (s *Session) Params() RunParams { return s.params }

// Stats returns the derived threshold statistics.
func (s *Session) Stats() ThresholdStats { return s.stats }

// Counts returns the tallies of persisted trials and events.
func (s *Session) Counts() EventCounts { return s.counts }

// LogPath returns the trial log file path.
func (s *Session) LogPath() string { return s.log.Path() }

// CommentPath returns the companion comment file path.
func (s *Session) CommentPath() string { return s.cmtPath }

// StartMillis returns the run's start time in milliseconds since epoch.
func (s *Session) StartMillis() int64 { return s.startMillis }

// Name returns the run's start-time-derived name (the log file base name
// without extension).
func (s *Session) Name() string {
	base := filepath.Base(s.log.Path())
	return base[:len(base)-len(filepath.Ext(base))]
}

// Close flushes and closes the trial log. The session must not be used after
// Close; a streaming run must be cancelled and drained first.
func (s *Session) Close() error {
	return s.log.Close()
}

func previewValues(values []byte) []int {
	n := len(values)
	if n > PreviewValues {
		n = PreviewValues
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(values[i])
	}
	return out
}
