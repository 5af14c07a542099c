package calibration

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrFrozen is returned when evidence arrives after the level froze.
	ErrFrozen = errors.New("session level is frozen")

	// ErrWrongPhase is returned when an operation does not fit the
	// session's current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")

	// ErrAlreadyFinalized is returned by a second call to Finalize.
	ErrAlreadyFinalized = errors.New("session already finalized")
)

// State is the calibration state of one learner-topic session. It is owned
// by a single goroutine; nothing in it is safe for concurrent use.
type State struct {
	LearnerID string
	TopicID   string

	TurnCount         int
	CurrentLevel      int
	CurrentConfidence float64
	PromotionStreak   int

	Phase        Phase
	Frozen       bool
	FreezeReason FreezeReason

	// Trail holds one record per diagnostic turn in turn order.
	Trail []Evidence

	// FinalLevel is zero until Finalize runs.
	FinalLevel int

	cfg Config
}

// NewState starts a session in the opener phase at cfg.InitialLevel.
func NewState(learnerID, topicID string, cfg Config) *State {
	return &State{
		LearnerID:    learnerID,
		TopicID:      topicID,
		CurrentLevel: cfg.InitialLevel,
		Phase:        PhaseOpener,
		FreezeReason: FreezeNone,
		cfg:          cfg,
	}
}

// Config returns the configuration the session was created with.
func (s *State) Config() Config { return s.cfg }

// CompleteOpener records the opening exchange and moves to diagnosis.
func (s *State) CompleteOpener() error {
	if s.Phase != PhaseOpener {
		return fmt.Errorf("complete opener in %s phase: %w", s.Phase, ErrWrongPhase)
	}
	s.TurnCount = 1
	s.Phase = PhaseDiagnosis
	s.advance()
	return nil
}

// Observe applies one diagnostic signal: level rule, then smoothing, then
// the phase controller. It returns the appended evidence record.
func (s *State) Observe(sig Signal) (Evidence, error) {
	if s.Frozen {
		return Evidence{}, ErrFrozen
	}
	if s.Phase != PhaseDiagnosis {
		return Evidence{}, fmt.Errorf("observe in %s phase: %w", s.Phase, ErrWrongPhase)
	}

	sig = sig.Clamp()
	s.CurrentLevel, s.PromotionStreak = UpdateLevel(s.CurrentLevel, s.PromotionStreak, sig, s.cfg)
	s.CurrentConfidence = Smooth(s.CurrentConfidence, sig.RawConfidence, s.cfg)

	ev := newEvidence(s.TurnCount, sig, s.CurrentLevel, s.CurrentConfidence)
	s.Trail = append(s.Trail, ev)
	s.TurnCount++
	s.advance()
	return ev, nil
}

// CompleteTutoringTurn counts one teaching exchange.
func (s *State) CompleteTutoringTurn() error {
	if s.Phase != PhaseTutoring {
		return fmt.Errorf("tutoring turn in %s phase: %w", s.Phase, ErrWrongPhase)
	}
	s.TurnCount++
	return nil
}

// Close ends the conversation. When the turn budget ran out before the
// level froze, the session is force-frozen with FreezeTurnBudget. A
// conversation closed early by the transport keeps its phase.
func (s *State) Close(budgetExhausted bool) {
	if budgetExhausted && !s.Frozen {
		s.freeze(FreezeTurnBudget)
	}
}

// Finalize computes and stores the reported level. It may run only once.
func (s *State) Finalize() (int, error) {
	if s.Finalized() {
		return s.FinalLevel, ErrAlreadyFinalized
	}
	s.FinalLevel = s.ReportedLevel()
	return s.FinalLevel, nil
}

// Finalized reports whether Finalize has run.
func (s *State) Finalized() bool { return s.FinalLevel != 0 }

// ReportedLevel is the level Finalize would store, without storing it.
func (s *State) ReportedLevel() int {
	if s.cfg.FinalizerPolicy == FinalizeUncertain && s.FreezeReason.ConfidenceFrozen() {
		return s.CurrentLevel
	}
	return MedianLevel(s.Trail, s.cfg.FinalizerWindow, s.cfg.InitialLevel)
}

func (s *State) advance() {
	if s.Frozen {
		return
	}
	if reason := nextFreeze(s); reason != FreezeNone {
		s.freeze(reason)
	}
}

func (s *State) freeze(reason FreezeReason) {
	s.Frozen = true
	s.FreezeReason = reason
	s.Phase = PhaseTutoring
}

// Snapshot is the persisted form of a State.
type Snapshot struct {
	LearnerID         string       `json:"learner_id"`
	TopicID           string       `json:"topic_id"`
	TurnCount         int          `json:"turn_count"`
	CurrentLevel      int          `json:"current_level"`
	CurrentConfidence float64      `json:"current_confidence"`
	PromotionStreak   int          `json:"promotion_streak"`
	Phase             Phase        `json:"phase"`
	Frozen            bool         `json:"frozen"`
	FreezeReason      FreezeReason `json:"freeze_reason"`
	Trail             []Evidence   `json:"evidence_trail"`
	FinalLevel        int          `json:"final_level,omitempty"`
}

// Snapshot copies the session into its persisted form.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		LearnerID:         s.LearnerID,
		TopicID:           s.TopicID,
		TurnCount:         s.TurnCount,
		CurrentLevel:      s.CurrentLevel,
		CurrentConfidence: s.CurrentConfidence,
		PromotionStreak:   s.PromotionStreak,
		Phase:             s.Phase,
		Frozen:            s.Frozen,
		FreezeReason:      s.FreezeReason,
		Trail:             slices.Clone(s.Trail),
		FinalLevel:        s.FinalLevel,
	}
}

// Restore rebuilds a State from a snapshot, rejecting snapshots that break
// the session invariants.
func Restore(snap Snapshot, cfg Config) (*State, error) {
	if err := snap.validate(); err != nil {
		return nil, fmt.Errorf("restore %s/%s: %w", snap.LearnerID, snap.TopicID, err)
	}
	return &State{
		LearnerID:         snap.LearnerID,
		TopicID:           snap.TopicID,
		TurnCount:         snap.TurnCount,
		CurrentLevel:      snap.CurrentLevel,
		CurrentConfidence: snap.CurrentConfidence,
		PromotionStreak:   snap.PromotionStreak,
		Phase:             snap.Phase,
		Frozen:            snap.Frozen,
		FreezeReason:      snap.FreezeReason,
		Trail:             slices.Clone(snap.Trail),
		FinalLevel:        snap.FinalLevel,
		cfg:               cfg,
	}, nil
}

func (snap Snapshot) validate() error {
	if !snap.Phase.Valid() {
		return fmt.Errorf("unknown phase %q", snap.Phase)
	}
	if !snap.FreezeReason.Valid() {
		return fmt.Errorf("unknown freeze reason %q", snap.FreezeReason)
	}
	if snap.Frozen != (snap.FreezeReason != FreezeNone) {
		return fmt.Errorf("frozen=%v inconsistent with freeze reason %q", snap.Frozen, snap.FreezeReason)
	}
	if snap.Frozen && snap.Phase != PhaseTutoring {
		return fmt.Errorf("frozen session in %s phase", snap.Phase)
	}
	if !levelValid(snap.CurrentLevel) {
		return fmt.Errorf("current level %d out of range", snap.CurrentLevel)
	}
	if snap.FinalLevel != 0 && !levelValid(snap.FinalLevel) {
		return fmt.Errorf("final level %d out of range", snap.FinalLevel)
	}
	if snap.CurrentConfidence < 0 || snap.CurrentConfidence > 1 {
		return fmt.Errorf("confidence %v out of range", snap.CurrentConfidence)
	}

	prev := 0
	for _, ev := range snap.Trail {
		if ev.Turn <= prev {
			return fmt.Errorf("evidence turn %d not after %d", ev.Turn, prev)
		}
		if !levelValid(ev.DecidedLevel) || !levelValid(ev.SuggestedLevel) {
			return fmt.Errorf("evidence turn %d has level out of range", ev.Turn)
		}
		prev = ev.Turn
	}
	return nil
}

func levelValid(l int) bool { return l >= MinLevel && l <= MaxLevel }
