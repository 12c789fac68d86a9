// Package chart renders analysed run data: a static PNG via gonum/plot and
// an interactive HTML line chart via go-echarts. Both consume the
// index-aligned series of a reg.Summary.
package chart

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/qbyte.report/internal/reg"
)

var (
	colorBitSums  = color.RGBA{R: 0xff, B: 0xff, A: 0xff} // magenta
	colorDev      = color.RGBA{G: 0xff, B: 0xff, A: 0xff} // cyan
	colorEnvelope = color.RGBA{R: 0x7f, G: 0xff, B: 0xd4, A: 0xff}
)

// relativeHours converts absolute millisecond timestamps to hours since the
// first trial, the x-axis both renderers use.
func relativeHours(timestamps []int64) []float64 {
	out := make([]float64, len(timestamps))
	if len(timestamps) == 0 {
		return out
	}
	t0 := timestamps[0]
	for i, t := range timestamps {
		out[i] = float64(t-t0) / 3600000.0
	}
	return out
}

// WritePNG renders the bit-sum series, the cumulative deviation and the
// ±1.96σ envelope as a PNG.
func WritePNG(s *reg.Summary, title string, w io.Writer) error {
	if len(s.Timestamps) == 0 {
		return fmt.Errorf("no trial data to plot")
	}

	hours := relativeHours(s.Timestamps)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (hours)"
	p.Y.Label.Text = "Bit Count / Deviation"

	bitPts := make(plotter.XYs, len(hours))
	devPts := make(plotter.XYs, len(hours))
	upperPts := make(plotter.XYs, len(hours))
	lowerPts := make(plotter.XYs, len(hours))
	for i, h := range hours {
		bitPts[i] = plotter.XY{X: h, Y: float64(s.BitSums[i])}
		devPts[i] = plotter.XY{X: h, Y: s.CumulativeDeviation[i]}
		upperPts[i] = plotter.XY{X: h, Y: s.ConfidenceEnvelope[i]}
		lowerPts[i] = plotter.XY{X: h, Y: -s.ConfidenceEnvelope[i]}
	}

	bitLine, err := plotter.NewLine(bitPts)
	if err != nil {
		return err
	}
	bitLine.Color = colorBitSums
	bitLine.Width = vg.Points(1)
	p.Add(bitLine)
	p.Legend.Add("Trial Data", bitLine)

	devLine, err := plotter.NewLine(devPts)
	if err != nil {
		return err
	}
	devLine.Color = colorDev
	devLine.Width = vg.Points(1)
	p.Add(devLine)
	p.Legend.Add("Cumulative Deviation", devLine)

	for label, pts := range map[string]plotter.XYs{"+1.96σ": upperPts, "-1.96σ": lowerPts} {
		envLine, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		envLine.Color = colorEnvelope
		envLine.Width = vg.Points(1)
		envLine.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(envLine)
		p.Legend.Add(label, envLine)
	}

	p.Legend.Top = true
	p.Legend.Left = true

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
