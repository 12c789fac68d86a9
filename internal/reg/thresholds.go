package reg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ThresholdStats holds the derived decision quantities for a parameter set.
// Both the generation and analysis sides recompute these from RunParams;
// boundary values stored in older logs are never trusted.
type ThresholdStats struct {
	Expected         float64 `json:"expected"`     // mean bit count, 4*width
	ColorBoundary    int     `json:"action_num_c"` // bit sums strictly above this raise color events
	ColorProb        float64 `json:"pmod_color"`   // two-tailed P of reaching the color boundary
	RotationBoundary int     `json:"action_num_r"`
	RotationProb     float64 `json:"pmod_rot"`
}

// ComputeThresholds derives the action boundaries and their two-tailed
// exceedance probabilities under a Binomial(8*width, 0.5) null model.
//
// The boundary is ceil(z*sigma + expected). Its probability is twice the
// survival function evaluated at boundary-1: distuv's Survival(x) is
// P(X > x), so Survival(boundary-1) is the inclusive tail P(X >= boundary).
func ComputeThresholds(p RunParams) (ThresholdStats, error) {
	if err := p.Validate(); err != nil {
		return ThresholdStats{}, err
	}

	n := float64(8 * p.SampleWidth)
	expected := 4 * float64(p.SampleWidth)
	sigma := math.Sqrt(n * 0.25)
	dist := distuv.Binomial{N: n, P: 0.5}

	colorBoundary := int(math.Ceil(p.ColorZ*sigma + expected))
	rotBoundary := int(math.Ceil(p.RotZ*sigma + expected))

	return ThresholdStats{
		Expected:         expected,
		ColorBoundary:    colorBoundary,
		ColorProb:        twoTailed(dist, colorBoundary),
		RotationBoundary: rotBoundary,
		RotationProb:     twoTailed(dist, rotBoundary),
	}, nil
}

// twoTailed doubles the inclusive upper tail at boundary, clamped to (0, 1].
// A boundary at or below the mean (z <= 0) is degenerate but well defined:
// the doubled tail saturates at 1.
func twoTailed(dist distuv.Binomial, boundary int) float64 {
	pr := 2 * dist.Survival(float64(boundary-1))
	return math.Min(pr, 1)
}

// String renders the stats the way run reports print them.
func (s ThresholdStats) String() string {
	return fmt.Sprintf("expected=%.0f colorBoundary=%d (p=%.6g) rotationBoundary=%d (p=%.6g)",
		s.Expected, s.ColorBoundary, s.ColorProb, s.RotationBoundary, s.RotationProb)
}
