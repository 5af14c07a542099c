package calibration

import "fmt"

// Phase is a session's position in the opener → diagnosis → tutoring
// lifecycle. Tutoring is terminal.
type Phase string

const (
	PhaseOpener    Phase = "opener"
	PhaseDiagnosis Phase = "diagnosis"
	PhaseTutoring  Phase = "tutoring"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseOpener, PhaseDiagnosis, PhaseTutoring:
		return true
	}
	return false
}

// ParsePhase converts a stored value back into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// FreezeReason records why diagnosis ended.
type FreezeReason string

const (
	FreezeNone                FreezeReason = "none"
	FreezeConfidenceThreshold FreezeReason = "confidence_threshold"
	FreezeEarlyExit           FreezeReason = "early_exit"
	FreezeTurnBudget          FreezeReason = "turn_budget"
)

// Valid reports whether r is a known freeze reason.
func (r FreezeReason) Valid() bool {
	switch r {
	case FreezeNone, FreezeConfidenceThreshold, FreezeEarlyExit, FreezeTurnBudget:
		return true
	}
	return false
}

// ParseFreezeReason converts a stored value back into a FreezeReason.
func ParseFreezeReason(s string) (FreezeReason, error) {
	r := FreezeReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown freeze reason %q", s)
	}
	return r, nil
}

// ConfidenceFrozen reports whether the freeze was earned by confidence
// rather than forced by the turn budget.
func (r FreezeReason) ConfidenceFrozen() bool {
	return r == FreezeConfidenceThreshold || r == FreezeEarlyExit
}

// nextFreeze evaluates the freeze conditions in priority order and returns
// FreezeNone when diagnosis should continue.
func nextFreeze(s *State) FreezeReason {
	switch {
	case s.CurrentConfidence >= s.cfg.EarlyExitThreshold && len(s.Trail) >= s.cfg.EarlyExitMinEvidence:
		return FreezeEarlyExit
	case s.CurrentConfidence >= s.cfg.FreezeThreshold:
		return FreezeConfidenceThreshold
	case s.TurnCount >= s.cfg.ShotClock:
		return FreezeTurnBudget
	}
	return FreezeNone
}
