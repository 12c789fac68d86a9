package reg

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTestLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "QB_1_test.txt")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestAnalyze(t *testing.T) {
	lines := []string{
		"ColorZ: 1.5 RotZ: 2 RNG: False False False",
		"QBYTE,255,15,1000,F", // bit sum 12
		"color,1000",
		"QBYTE,0,0,2000,F", // bit sum 0
		"QBYTE,255,31,3000,F", // bit sum 13
		"color,3000",
		"rotation,3000",
	}

	s, err := Analyze(lines, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if s.Params.SampleWidth != 2 {
		t.Errorf("SampleWidth = %d, want 2", s.Params.SampleWidth)
	}
	want := EventCounts{Color: 2, Rotation: 1, Trials: 3}
	if s.Events != want {
		t.Errorf("Events = %+v, want %+v", s.Events, want)
	}

	// Expected bit sum per trial is 8; deviations accumulate per trial.
	wantDev := []float64{4, -4, 1}
	if diff := cmp.Diff(wantDev, s.CumulativeDeviation); diff != "" {
		t.Errorf("CumulativeDeviation mismatch (-want +got):\n%s", diff)
	}

	// Envelope grows as 1.96*sqrt(2n) for width 2.
	for i, got := range s.ConfidenceEnvelope {
		wantEnv := 1.96 * math.Sqrt(2*float64(i+1))
		if math.Abs(got-wantEnv) > 1e-12 {
			t.Errorf("ConfidenceEnvelope[%d] = %v, want %v", i, got, wantEnv)
		}
	}

	// Boundaries come from the header parameters, never from the log body.
	if s.Stats.ColorBoundary != 11 || s.Stats.RotationBoundary != 12 {
		t.Errorf("boundaries = %d/%d, want 11/12", s.Stats.ColorBoundary, s.Stats.RotationBoundary)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	lines := []string{
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True False",
		"QBYTE,1,2,3,4,1000,F",
		"QBYTE,5,6,7,8,1100,F",
		"color,1100",
	}
	a, err := Analyze(lines, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := Analyze(lines, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated analysis differs:\n%s", diff)
	}
}

func TestAnalyzeTrialLimit(t *testing.T) {
	lines := []string{"ColorZ: 1.65 RotZ: 1.85 RNG: False True False"}
	for i := 0; i < 10; i++ {
		lines = append(lines, "QBYTE,255,1000,F", "color,1000")
	}

	s, err := Analyze(lines, 4)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(s.BitSums) != 4 {
		t.Errorf("len(BitSums) = %d, want series limit of 4", len(s.BitSums))
	}
	// Tallies cover the whole log regardless of the series limit.
	if s.Events.Trials != 10 {
		t.Errorf("Trials = %d, want 10", s.Events.Trials)
	}
	if s.Events.Color != 10 {
		t.Errorf("Color = %d, want 10", s.Events.Color)
	}
}

func TestAnalyzeLongLogTallies(t *testing.T) {
	// A log longer than the default series limit still reports the full
	// trial count, so tallies and event counts stay coherent.
	lines := []string{"ColorZ: 1.65 RotZ: 1.85 RNG: False True False"}
	for i := 0; i < 2000; i++ {
		lines = append(lines, "QBYTE,255,1000,F", "color,1000")
	}

	s, err := Analyze(lines, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Events.Trials != 2000 {
		t.Errorf("Trials = %d, want 2000", s.Events.Trials)
	}
	if s.Events.Color != 2000 {
		t.Errorf("Color = %d, want 2000", s.Events.Color)
	}
	if len(s.BitSums) != DefaultAnalysisLimit {
		t.Errorf("len(BitSums) = %d, want %d", len(s.BitSums), DefaultAnalysisLimit)
	}
	if len(s.Timestamps) != len(s.CumulativeDeviation) || len(s.BitSums) != len(s.ConfidenceEnvelope) {
		t.Error("series are not index-aligned")
	}
}

func TestAnalyzeEmptyLog(t *testing.T) {
	for _, tt := range []struct {
		name  string
		lines []string
	}{
		{"no lines", nil},
		{"header only", []string{"ColorZ: 1.65 RotZ: 1.85 RNG: False True False"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Analyze(tt.lines, 0)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if s.Events.Trials != 0 {
				t.Errorf("Trials = %d, want 0", s.Events.Trials)
			}
			if len(s.Timestamps) != 0 || len(s.CumulativeDeviation) != 0 {
				t.Error("series should be empty")
			}
			// Defaults still yield well-defined thresholds.
			if s.Stats.ColorBoundary != 1037 {
				t.Errorf("ColorBoundary = %d, want 1037", s.Stats.ColorBoundary)
			}
		})
	}
}

func TestAnalyzeFileMissing(t *testing.T) {
	_, err := AnalyzeFile(filepath.Join(t.TempDir(), "QB_0_absent.txt"), 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParseHeaderFile(t *testing.T) {
	path := writeTestLog(t,
		"ColorZ: 2.5 RotZ: 3 RNG: True False True",
		"QBYTE,1,2,3,4,5,6,1000,T",
	)
	params, err := ParseHeaderFile(path)
	if err != nil {
		t.Fatalf("ParseHeaderFile: %v", err)
	}
	want := RunParams{ColorZ: 2.5, RotZ: 3, SampleWidth: 6, UseTrueRNG: true, Halo: false, Turbo: true}
	if params != want {
		t.Errorf("params = %+v, want %+v", params, want)
	}
}

func TestCountEventsFile(t *testing.T) {
	path := writeTestLog(t,
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True False",
		"QBYTE,1,1000,F",
		"color,1000",
		"QBYTE,2,1100,F",
		"rotation,1100",
		"color,1100",
		"",
		"junk",
	)
	counts, err := CountEventsFile(path)
	if err != nil {
		t.Fatalf("CountEventsFile: %v", err)
	}
	want := EventCounts{Color: 2, Rotation: 1, Trials: 2}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}
