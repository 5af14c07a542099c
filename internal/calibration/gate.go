package calibration

import (
	"context"
	"fmt"
)

// Corroborator independently re-checks whether a learner reply is correct.
type Corroborator interface {
	Corroborate(ctx context.Context, topic, reply string) (bool, error)
}

// Gate consults a Corroborator for signals whose raw confidence falls in
// the ambiguity band. Outside the band it makes no calls.
type Gate struct {
	low, high float64
	verifier  Corroborator
}

// NewGate builds a gate over cfg's ambiguity band. A nil verifier disables
// corroboration entirely.
func NewGate(cfg Config, verifier Corroborator) *Gate {
	return &Gate{low: cfg.AmbiguityLow, high: cfg.AmbiguityHigh, verifier: verifier}
}

// NeedsCorroboration reports whether raw lies inside the inclusive band.
func (g *Gate) NeedsCorroboration(raw float64) bool {
	return raw >= g.low && raw <= g.high
}

// Apply returns sig with IsCorrect replaced by the verifier's verdict when
// the two disagree. Degraded signals pass through untouched. On verifier
// failure the original signal is returned together with the error.
func (g *Gate) Apply(ctx context.Context, topic, reply string, sig Signal) (Signal, error) {
	if g.verifier == nil || sig.Degraded || !g.NeedsCorroboration(sig.RawConfidence) {
		return sig, nil
	}

	verdict, err := g.verifier.Corroborate(ctx, topic, reply)
	if err != nil {
		return sig, fmt.Errorf("corroborate: %w", err)
	}

	sig.Corroborated = true
	if verdict != sig.IsCorrect {
		sig.IsCorrect = verdict
		sig.Overridden = true
		if verdict {
			sig.Misconception = ""
		}
	}
	return sig, nil
}
