package session

import (
	"github.com/samber/lo"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/transport"
)

// RunSummary aggregates the results of one batch.
type RunSummary struct {
	Sessions  int
	Failed    int
	Degraded  int // sessions with at least one degraded turn
	MeanLevel float64
	ByReason  map[calibration.FreezeReason]int
	ByLevel   map[int]int
}

// BuildSummary tallies a batch of results. Failed sessions count only
// towards Failed.
func BuildSummary(results []Result) *RunSummary {
	ok, failed := lo.FilterReject(results, func(r Result, _ int) bool { return !r.Failed() })

	s := &RunSummary{
		Sessions: len(results),
		Failed:   len(failed),
		Degraded: lo.CountBy(ok, func(r Result) bool { return r.Degraded > 0 }),
		ByReason: lo.CountValuesBy(ok, func(r Result) calibration.FreezeReason { return r.FreezeReason }),
		ByLevel:  lo.CountValuesBy(ok, func(r Result) int { return r.Level }),
	}
	if len(ok) > 0 {
		s.MeanLevel = lo.Mean(lo.Map(ok, func(r Result, _ int) float64 { return float64(r.Level) }))
	}
	return s
}

// Predictions returns one submission row per finalized session.
func Predictions(results []Result) []transport.Prediction {
	return lo.FilterMap(results, func(r Result, _ int) (transport.Prediction, bool) {
		return transport.Prediction{
			StudentID:      r.Task.LearnerID,
			TopicID:        r.Task.TopicID,
			PredictedLevel: r.Level,
		}, !r.Failed()
	})
}
