package chart

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/qbyte.report/internal/reg"
)

func testSummary(t *testing.T) *reg.Summary {
	t.Helper()
	lines := []string{
		"ColorZ: 1.65 RotZ: 1.85 RNG: False True False",
		"QBYTE,10,20,30,1000,F",
		"QBYTE,40,50,60,61000,F",
		"QBYTE,70,80,90,121000,F",
	}
	s, err := reg.Analyze(lines, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return s
}

func TestRelativeHours(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []int64
		want       []float64
	}{
		{"empty", nil, []float64{}},
		{"single point at origin", []int64{5000}, []float64{0}},
		{"one hour apart", []int64{0, 3600000, 7200000}, []float64{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relativeHours(tt.timestamps)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("hours[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(testSummary(t), "test run", &buf); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	// PNG magic bytes.
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Errorf("output does not look like a PNG: % x", buf.Bytes()[:8])
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(testSummary(t), "test run", &buf); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "cumulative deviation") {
		t.Error("chart missing deviation series")
	}
	if !strings.Contains(html, "trials=3") {
		t.Error("chart subtitle missing tallies")
	}
}

func TestEmptySummaryRejected(t *testing.T) {
	empty := &reg.Summary{}
	var buf bytes.Buffer
	if err := WritePNG(empty, "empty", &buf); err == nil {
		t.Error("WritePNG should reject an empty summary")
	}
	if err := WriteHTML(empty, "empty", &buf); err == nil {
		t.Error("WriteHTML should reject an empty summary")
	}
}
