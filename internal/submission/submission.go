// Package submission summarizes the history of scored batch submissions.
package submission

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/store"
)

// Band grades an MSE score.
type Band string

const (
	BandGood Band = "good" // mse <= 0.5
	BandFair Band = "fair" // mse <= 1.0
	BandPoor Band = "poor"
)

func BandFor(mse float64) Band {
	switch {
	case mse <= 0.5:
		return BandGood
	case mse <= 1.0:
		return BandFair
	default:
		return BandPoor
	}
}

// RunConfig is the configuration recorded alongside a submission so runs
// can be compared later.
type RunConfig struct {
	Turns       int                 `json:"turns"`
	Workers     int                 `json:"workers"`
	MaxConvos   int                 `json:"max_convos,omitempty"`
	Provider    string              `json:"provider,omitempty"`
	Calibration *calibration.Config `json:"calibration,omitempty"`
}

// Encode renders the config as stored JSON.
func (c RunConfig) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode run config: %w", err)
	}
	return string(b), nil
}

// DecodeRunConfig parses a stored config. Empty or malformed input yields
// the zero config.
func DecodeRunConfig(s string) RunConfig {
	var c RunConfig
	_ = json.Unmarshal([]byte(s), &c)
	return c
}

// Row is one line of the history table.
type Row struct {
	Index       int
	Timestamp   string
	SetType     string
	MSE         float64
	Band        Band
	Predictions int
	Turns       int
	Workers     int
}

// Stats are computed over every submission, oldest first.
type Stats struct {
	Best  float64
	Worst float64
	Avg   float64
	// Trend is last minus first; negative means scores improved.
	Trend float64
}

// Summary is the rendered history.
type Summary struct {
	Rows  []Row
	Stats *Stats // nil when there are no submissions
	Best  *store.Submission
}

// Summarize builds the history view. Submissions must be oldest first.
func Summarize(subs []store.Submission) Summary {
	rows := lo.Map(subs, func(s store.Submission, i int) Row {
		cfg := DecodeRunConfig(s.Config)
		return Row{
			Index:       i + 1,
			Timestamp:   s.Timestamp.Local().Format("2006-01-02 15:04:05"),
			SetType:     s.SetType,
			MSE:         s.MSE,
			Band:        BandFor(s.MSE),
			Predictions: s.PredictionCount,
			Turns:       cfg.Turns,
			Workers:     cfg.Workers,
		}
	})

	if len(subs) == 0 {
		return Summary{Rows: rows}
	}

	scores := lo.Map(subs, func(s store.Submission, _ int) float64 { return s.MSE })
	best := lo.MinBy(subs, func(a, b store.Submission) bool { return a.MSE < b.MSE })

	return Summary{
		Rows: rows,
		Stats: &Stats{
			Best:  lo.Min(scores),
			Worst: lo.Max(scores),
			Avg:   lo.Mean(scores),
			Trend: scores[len(scores)-1] - scores[0],
		},
		Best: &best,
	}
}
