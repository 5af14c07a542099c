package calibration

import "math"

// epsilon absorbs float error when comparing sums of two-decimal values.
const epsilon = 1e-9

// Smooth returns the tracked confidence after one turn. Confidence follows
// a falling raw signal immediately but climbs by at most cfg.MaxStep per
// turn, and never exceeds cfg.ConfidenceCeiling.
func Smooth(prior, raw float64, cfg Config) float64 {
	next := math.Min(clampUnit(raw), prior+cfg.MaxStep)
	next = clampUnit(math.Min(next, cfg.ConfidenceCeiling))

	// Two decimals, rounded down so the result never exceeds raw or the
	// step cap. epsilon keeps 0.7+0.2 from flooring to 0.89.
	return math.Floor(next*100+epsilon) / 100
}
