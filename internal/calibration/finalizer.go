package calibration

import (
	"math"
	"slices"
)

// MedianLevel returns the median DecidedLevel over the last window records
// of trail. An even count averages the two middle values rounding half up.
// An empty trail yields fallback. The trail is not modified.
func MedianLevel(trail []Evidence, window, fallback int) int {
	if len(trail) == 0 || window < 1 {
		return fallback
	}

	tail := trail[max(0, len(trail)-window):]
	levels := make([]int, len(tail))
	for i, ev := range tail {
		levels[i] = ev.DecidedLevel
	}
	slices.Sort(levels)

	n := len(levels)
	if n%2 == 1 {
		return levels[n/2]
	}
	mid := float64(levels[n/2-1]+levels[n/2]) / 2
	return clampInt(int(math.Floor(mid+0.5)), MinLevel, MaxLevel)
}
