package reg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params RunParams
	}{
		{"defaults", DefaultParams()},
		{"true rng turbo", RunParams{ColorZ: 2.5, RotZ: 3, SampleWidth: DefaultSampleWidth, UseTrueRNG: true, Halo: false, Turbo: true}},
		{"fractional z", RunParams{ColorZ: 1.234, RotZ: 0.5, SampleWidth: DefaultSampleWidth, Halo: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeader(EncodeHeader(tt.params))
			if got != tt.params {
				t.Errorf("round trip = %+v, want %+v", got, tt.params)
			}
		})
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	tests := []struct {
		name string
		line string
		want RunParams
	}{
		{
			name: "empty line keeps all defaults",
			line: "",
			want: DefaultParams(),
		},
		{
			name: "z values only",
			line: "ColorZ: 2.0 RotZ: 2.5",
			want: RunParams{ColorZ: 2.0, RotZ: 2.5, SampleWidth: DefaultSampleWidth, Halo: true},
		},
		{
			name: "flags cut after rng",
			line: "ColorZ: 1.65 RotZ: 1.85 RNG: True",
			want: RunParams{ColorZ: 1.65, RotZ: 1.85, SampleWidth: DefaultSampleWidth, UseTrueRNG: true, Halo: true},
		},
		{
			name: "malformed numerics keep defaults",
			line: "ColorZ: abc RotZ: xyz RNG: False True False",
			want: DefaultParams(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseHeader(tt.line); got != tt.want {
				t.Errorf("ParseHeader(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestTrialRoundTrip(t *testing.T) {
	trial := Trial{
		Timestamp: 1700000000123,
		Values:    []byte{0, 127, 255, 1},
		Turbo:     true,
	}
	trial.BitSum = BitSum(trial.Values)

	line := EncodeTrial(trial)
	want := "QBYTE,0,127,255,1,1700000000123,T"
	if line != want {
		t.Fatalf("EncodeTrial = %q, want %q", line, want)
	}

	got := parseTrialLine(line)
	if got.Timestamp != trial.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, trial.Timestamp)
	}
	if !got.Turbo {
		t.Error("Turbo flag lost")
	}
	if string(got.Values) != string(trial.Values) {
		t.Errorf("Values = %v, want %v", got.Values, trial.Values)
	}
	if got.BitSum != trial.BitSum {
		t.Errorf("BitSum = %d, want %d", got.BitSum, trial.BitSum)
	}
}

func TestParseTrialLineTolerance(t *testing.T) {
	// Malformed numeric fields contribute zero instead of failing the line.
	got := parseTrialLine("QBYTE,12,oops,34,not-a-time,F")
	if len(got.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(got.Values))
	}
	if got.Values[1] != 0 {
		t.Errorf("malformed value = %d, want 0", got.Values[1])
	}
	if got.Timestamp != 0 {
		t.Errorf("malformed timestamp = %d, want 0", got.Timestamp)
	}
	if got.Turbo {
		t.Error("Turbo should be false for F")
	}
}

func TestDecode(t *testing.T) {
	lines := []string{
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True False",
		"QBYTE,255,255,255,1000,F",
		"color,1000",
		"QBYTE,0,0,0,1100,F",
		"",
		"garbage line",
		"rotation,1200",
		"QBYTE,1,2,3,1300,F",
	}

	params, records, counts := Decode(lines, 0)
	if params.SampleWidth != 3 {
		t.Errorf("inferred SampleWidth = %d, want 3", params.SampleWidth)
	}
	if params.ColorZ != 1.65 || params.RotZ != 1.85 {
		t.Errorf("header params = %+v", params)
	}
	if counts != (EventCounts{Color: 1, Rotation: 1, Trials: 3}) {
		t.Errorf("counts = %+v, want 3 trials, 1 color, 1 rotation", counts)
	}

	var trials, colors, rotations int
	for _, rec := range records {
		switch {
		case rec.Trial != nil:
			trials++
		case rec.Event != nil && rec.Event.Kind == EventColor:
			colors++
		case rec.Event != nil && rec.Event.Kind == EventRotation:
			rotations++
		}
	}
	if trials != 3 || colors != 1 || rotations != 1 {
		t.Errorf("trials=%d colors=%d rotations=%d, want 3/1/1", trials, colors, rotations)
	}
}

func TestDecodeTrialLimit(t *testing.T) {
	lines := []string{
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True False",
		"QBYTE,1,1000,F",
		"QBYTE,2,1100,F",
		"color,1150",
		"QBYTE,3,1200,F",
		"rotation,1250",
	}

	_, records, counts := Decode(lines, 2)

	var trials, events int
	for _, rec := range records {
		if rec.Trial != nil {
			trials++
		} else {
			events++
		}
	}
	if trials != 2 {
		t.Errorf("materialized trials = %d, want limit of 2", trials)
	}
	if events != 2 {
		t.Errorf("materialized events = %d, want 2", events)
	}
	// Tallies ignore the limit and cover the whole input.
	if counts != (EventCounts{Color: 1, Rotation: 1, Trials: 3}) {
		t.Errorf("counts = %+v, want full-file tallies 3/1/1", counts)
	}
}

func TestDecodeTurboWidthInference(t *testing.T) {
	lines := []string{
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True True",
		"QBYTE,9,8,7,6,5,2000,T",
	}
	params, records, _ := Decode(lines, 0)
	if params.SampleWidth != 5 {
		t.Errorf("SampleWidth = %d, want 5", params.SampleWidth)
	}
	if !params.Turbo {
		t.Error("Turbo not inferred from trial line suffix")
	}
	if len(records) != 1 || records[0].Trial == nil {
		t.Fatalf("records = %+v, want one trial", records)
	}
}

func TestDecodeEmpty(t *testing.T) {
	params, records, counts := Decode(nil, 0)
	if params != DefaultParams() {
		t.Errorf("params = %+v, want defaults", params)
	}
	if records != nil {
		t.Errorf("records = %+v, want nil", records)
	}
	if counts != (EventCounts{}) {
		t.Errorf("counts = %+v, want zero", counts)
	}
}

func TestLogWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "QB_1_test.txt")

	params := DefaultParams()
	w, err := CreateLog(path, params)
	if err != nil {
		t.Fatalf("CreateLog: %v", err)
	}

	trial := Trial{Timestamp: 1000, Values: []byte{255, 0}, Turbo: false}
	trial.BitSum = BitSum(trial.Values)
	if err := w.AppendTrial(trial); err != nil {
		t.Fatalf("AppendTrial: %v", err)
	}
	if err := w.AppendEvent(Event{Kind: EventColor, Timestamp: 1000}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := EncodeHeader(params) + "\n" +
		"QBYTE,255,0,1000,F\n" +
		"color,1000\n"
	if string(data) != want {
		t.Errorf("log contents:\n%q\nwant:\n%q", data, want)
	}

	// Closed writers reject further appends; Close stays idempotent.
	if err := w.AppendTrial(trial); !errors.Is(err, ErrLogClosed) {
		t.Errorf("append after close: err = %v, want ErrLogClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCreateLogRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "QB_1_test.txt")

	w, err := CreateLog(path, DefaultParams())
	if err != nil {
		t.Fatalf("CreateLog: %v", err)
	}
	defer w.Close()

	if _, err := CreateLog(path, DefaultParams()); err == nil {
		t.Fatal("CreateLog on an existing file should fail")
	} else if !strings.Contains(err.Error(), "trial log") {
		t.Errorf("unexpected error: %v", err)
	}
}
