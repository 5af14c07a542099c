package calibration

import "math"

// Level and score bounds shared by every component.
const (
	MinLevel = 1
	MaxLevel = 5
	MinScore = 1
	MaxScore = 5
)

// Signal is one turn's raw diagnostic output before it is trusted. The
// gate may rewrite IsCorrect; nothing else is changed after clamping.
type Signal struct {
	IsCorrect      bool
	ReasoningScore int
	Misconception  string
	SuggestedLevel int
	RawConfidence  float64

	// Corroborated is set when the verifier was consulted for this turn.
	Corroborated bool
	// Overridden is set when the verifier's verdict replaced IsCorrect.
	Overridden bool
	// Degraded marks a synthesized signal standing in for a detective
	// that could not be reached.
	Degraded bool
}

// Clamp pulls every numeric field into its valid range.
func (s Signal) Clamp() Signal {
	s.ReasoningScore = clampInt(s.ReasoningScore, MinScore, MaxScore)
	s.SuggestedLevel = clampInt(s.SuggestedLevel, MinLevel, MaxLevel)
	s.RawConfidence = clampUnit(s.RawConfidence)
	return s
}

// DegradedSignal is the conservative stand-in used when the detective fails
// after retries: it suggests no level change, carries neutral reasoning and
// never demotes.
func DegradedSignal(currentLevel int, cfg Config) Signal {
	return Signal{
		IsCorrect:      false,
		ReasoningScore: 3,
		SuggestedLevel: currentLevel,
		RawConfidence:  cfg.FallbackConfidence,
		Degraded:       true,
	}
}

// Evidence is the audit record of one diagnostic turn. Records are appended
// to the trail and never modified afterwards.
type Evidence struct {
	Turn               int     `json:"turn"`
	IsCorrect          bool    `json:"is_correct"`
	ReasoningScore     int     `json:"reasoning_score"`
	Misconception      string  `json:"misconception,omitempty"`
	SuggestedLevel     int     `json:"suggested_level"`
	RawConfidence      float64 `json:"raw_confidence"`
	DecidedLevel       int     `json:"decided_level"`
	SmoothedConfidence float64 `json:"smoothed_confidence"`
	Corroborated       bool    `json:"corroborated,omitempty"`
	Overridden         bool    `json:"overridden,omitempty"`
	Degraded           bool    `json:"degraded,omitempty"`
}

func newEvidence(turn int, sig Signal, level int, confidence float64) Evidence {
	return Evidence{
		Turn:               turn,
		IsCorrect:          sig.IsCorrect,
		ReasoningScore:     sig.ReasoningScore,
		Misconception:      sig.Misconception,
		SuggestedLevel:     sig.SuggestedLevel,
		RawConfidence:      sig.RawConfidence,
		DecidedLevel:       level,
		SmoothedConfidence: confidence,
		Corroborated:       sig.Corroborated,
		Overridden:         sig.Overridden,
		Degraded:           sig.Degraded,
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
