package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/qbyte.report/internal/reg"
)

// WriteHTML renders the cumulative deviation and its ±1.96σ envelope as an
// interactive HTML line chart. Debugging aid for browsing runs without a
// separate frontend.
func WriteHTML(s *reg.Summary, title string, w io.Writer) error {
	if len(s.Timestamps) == 0 {
		return fmt.Errorf("no trial data to plot")
	}

	hours := relativeHours(s.Timestamps)
	xAxis := make([]string, len(hours))
	dev := make([]opts.LineData, len(hours))
	upper := make([]opts.LineData, len(hours))
	lower := make([]opts.LineData, len(hours))
	for i, h := range hours {
		xAxis[i] = fmt.Sprintf("%.3f", h)
		dev[i] = opts.LineData{Value: s.CumulativeDeviation[i]}
		upper[i] = opts.LineData{Value: s.ConfidenceEnvelope[i]}
		lower[i] = opts.LineData{Value: -s.ConfidenceEnvelope[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("trials=%d color=%d rotation=%d", s.Events.Trials, s.Events.Color, s.Events.Rotation),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (hours)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Deviation"}),
	)

	line.SetXAxis(xAxis).
		AddSeries("cumulative deviation", dev).
		AddSeries("+1.96σ", upper).
		AddSeries("-1.96σ", lower)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
