package reg

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// DefaultAnalysisLimit bounds how many trials a single analysis materializes
// into its series. Long-running logs can hold millions of lines; truncating
// the series keeps response sizes sane and is deliberate, not lossy parsing.
// Tallies are never truncated.
const DefaultAnalysisLimit = 1000

// Analyze decodes raw log lines and recomputes the run's statistics: action
// boundaries from the header parameters (stored boundaries are never
// trusted), running cumulative deviation from expectation, the 95% confidence
// envelope, and event tallies.
//
// limit <= 0 selects DefaultAnalysisLimit. The limit truncates the decoded
// series only; trial and event tallies always cover the whole file. An empty
// or header-only input yields a zero-trial summary, not an error.
func Analyze(lines []string, limit int) (*Summary, error) {
	if limit <= 0 {
		limit = DefaultAnalysisLimit
	}

	params, records, counts := Decode(lines, limit)
	stats, err := ComputeThresholds(params)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Params:              params,
		Stats:               stats,
		Events:              counts,
		Timestamps:          []int64{},
		BitSums:             []int{},
		CumulativeDeviation: []float64{},
		ConfidenceEnvelope:  []float64{},
	}

	expected := 4 * float64(params.SampleWidth)
	perTrialVar := 4 * float64(params.SampleWidth) * 0.25
	cumSum := 0.0
	for _, rec := range records {
		if rec.Trial == nil {
			continue
		}
		t := rec.Trial
		s.Timestamps = append(s.Timestamps, t.Timestamp)
		s.BitSums = append(s.BitSums, t.BitSum)

		cumSum += float64(t.BitSum)
		n := float64(len(s.BitSums))
		s.CumulativeDeviation = append(s.CumulativeDeviation, cumSum-expected*n)
		s.ConfidenceEnvelope = append(s.ConfidenceEnvelope, 1.96*math.Sqrt(perTrialVar*n))
	}
	return s, nil
}

// AnalyzeFile runs Analyze over a persisted log.
func AnalyzeFile(path string, limit int) (*Summary, error) {
	lines, err := readLogLines(path)
	if err != nil {
		return nil, err
	}
	return Analyze(lines, limit)
}

// ParseHeaderFile decodes just the run parameters of a persisted log,
// including the sample width inferred from the first trial line.
func ParseHeaderFile(path string) (RunParams, error) {
	lines, err := readLogLines(path)
	if err != nil {
		return RunParams{}, err
	}
	params, _, _ := Decode(lines, 1)
	return params, nil
}

// CountEventsFile tallies trial and event lines of a persisted log without
// decoding sample vectors.
func CountEventsFile(path string) (EventCounts, error) {
	lines, err := readLogLines(path)
	if err != nil {
		return EventCounts{}, err
	}

	var counts EventCounts
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, TrialTag+","):
			counts.Trials++
		case strings.HasPrefix(line, string(EventColor)+","):
			counts.Color++
		case strings.HasPrefix(line, string(EventRotation)+","):
			counts.Rotation++
		}
	}
	return counts, nil
}

func readLogLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("trial log %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read trial log: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}
