package calibration

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func startedState(t *testing.T, cfg Config) *State {
	t.Helper()
	s := NewState("learner-1", "topic-1", cfg)
	if err := s.CompleteOpener(); err != nil {
		t.Fatalf("complete opener: %v", err)
	}
	return s
}

func TestState_Lifecycle(t *testing.T) {
	s := NewState("learner-1", "topic-1", DefaultConfig())
	if s.Phase != PhaseOpener || s.CurrentLevel != 3 || s.CurrentConfidence != 0 {
		t.Fatalf("unexpected initial state: %+v", s)
	}

	if _, err := s.Observe(Signal{SuggestedLevel: 3}); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("observe before opener: err = %v, want ErrWrongPhase", err)
	}

	if err := s.CompleteOpener(); err != nil {
		t.Fatalf("complete opener: %v", err)
	}
	if s.Phase != PhaseDiagnosis || s.TurnCount != 1 {
		t.Fatalf("after opener: phase=%s turn=%d", s.Phase, s.TurnCount)
	}
	if err := s.CompleteOpener(); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("second opener: err = %v, want ErrWrongPhase", err)
	}

	ev, err := s.Observe(Signal{SuggestedLevel: 4, IsCorrect: true, ReasoningScore: 4, RawConfidence: 0.5})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if ev.Turn != 1 || ev.DecidedLevel != 3 || ev.SmoothedConfidence != 0.2 {
		t.Fatalf("unexpected evidence: %+v", ev)
	}
	if s.PromotionStreak != 1 || s.TurnCount != 2 {
		t.Fatalf("streak=%d turn=%d", s.PromotionStreak, s.TurnCount)
	}

	if err := s.CompleteTutoringTurn(); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("tutoring during diagnosis: err = %v, want ErrWrongPhase", err)
	}
}

func TestState_ShotClockWithZeroConfidence(t *testing.T) {
	cfg := DefaultConfig()
	s := startedState(t, cfg)

	for s.TurnCount < cfg.ShotClock {
		if s.Frozen {
			t.Fatalf("froze early at turn %d", s.TurnCount)
		}
		if _, err := s.Observe(Signal{SuggestedLevel: 3, ReasoningScore: 3, RawConfidence: 0}); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}

	if !s.Frozen || s.FreezeReason != FreezeTurnBudget {
		t.Fatalf("frozen=%v reason=%s, want turn_budget", s.Frozen, s.FreezeReason)
	}
	if s.TurnCount != cfg.ShotClock {
		t.Fatalf("froze at turn %d, want %d", s.TurnCount, cfg.ShotClock)
	}
	if s.Phase != PhaseTutoring {
		t.Fatalf("phase = %s, want tutoring", s.Phase)
	}
	if len(s.Trail) != cfg.ShotClock-1 {
		t.Fatalf("trail length = %d, want %d", len(s.Trail), cfg.ShotClock-1)
	}
}

func TestState_ShotClockOfOneFreezesAfterOpener(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShotClock = 1
	s := startedState(t, cfg)
	if !s.Frozen || s.FreezeReason != FreezeTurnBudget {
		t.Fatalf("frozen=%v reason=%s, want turn_budget", s.Frozen, s.FreezeReason)
	}
}

func TestState_ConfidenceThreshold(t *testing.T) {
	s := startedState(t, DefaultConfig())

	for i, raw := range []float64{0.9, 0.9, 0.9} {
		if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 3, RawConfidence: raw}); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if s.Frozen {
			t.Fatalf("froze on turn %d at confidence %v", i+1, s.CurrentConfidence)
		}
	}

	if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 3, RawConfidence: 0.9}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if s.FreezeReason != FreezeConfidenceThreshold || s.CurrentConfidence != 0.8 {
		t.Fatalf("reason=%s confidence=%v, want confidence_threshold at 0.8", s.FreezeReason, s.CurrentConfidence)
	}
}

func TestState_RawBelowThresholdDoesNotFreeze(t *testing.T) {
	s := startedState(t, DefaultConfig())

	for i, raw := range []float64{0.2, 0.4, 0.6, 0.746} {
		if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 3, RawConfidence: raw}); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}
	if s.Frozen || s.CurrentConfidence != 0.74 {
		t.Fatalf("frozen=%v confidence=%v, want unfrozen at 0.74", s.Frozen, s.CurrentConfidence)
	}
}

func TestState_EarlyExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStep = 0.3
	s := startedState(t, cfg)

	for _, raw := range []float64{0.7, 0.7, 0.7} {
		if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 3, RawConfidence: raw}); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	if s.Frozen {
		t.Fatalf("froze before early exit at confidence %v", s.CurrentConfidence)
	}

	if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 3, RawConfidence: 0.95}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if s.FreezeReason != FreezeEarlyExit {
		t.Fatalf("reason = %s, want early_exit", s.FreezeReason)
	}
	if s.TurnCount >= cfg.ShotClock {
		t.Fatalf("early exit should fire before the shot clock, turn=%d", s.TurnCount)
	}
}

func TestState_EarlyExitNeedsEvidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStep = 1
	s := startedState(t, cfg)

	if _, err := s.Observe(Signal{SuggestedLevel: 3, IsCorrect: true, ReasoningScore: 5, RawConfidence: 0.9}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if s.FreezeReason != FreezeConfidenceThreshold {
		t.Fatalf("reason = %s, want confidence_threshold with one record", s.FreezeReason)
	}
}

func TestState_FrozenIsTerminal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShotClock = 2
	s := startedState(t, cfg)
	if _, err := s.Observe(Signal{SuggestedLevel: 3, ReasoningScore: 3}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if !s.Frozen {
		t.Fatal("expected frozen")
	}

	level, conf := s.CurrentLevel, s.CurrentConfidence
	if _, err := s.Observe(Signal{SuggestedLevel: 5, IsCorrect: true, ReasoningScore: 5, RawConfidence: 1}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("observe after freeze: err = %v, want ErrFrozen", err)
	}
	for range 3 {
		if err := s.CompleteTutoringTurn(); err != nil {
			t.Fatalf("tutoring turn: %v", err)
		}
	}
	s.Close(true)

	if s.Phase != PhaseTutoring || !s.Frozen || s.FreezeReason != FreezeTurnBudget {
		t.Fatalf("terminal state changed: %+v", s)
	}
	if s.CurrentLevel != level || s.CurrentConfidence != conf {
		t.Fatal("level or confidence mutated after freeze")
	}
}

func TestState_CloseForceFreezes(t *testing.T) {
	s := startedState(t, DefaultConfig())
	s.Close(false)
	if s.Frozen {
		t.Fatal("transport completion must not force a freeze")
	}
	s.Close(true)
	if !s.Frozen || s.FreezeReason != FreezeTurnBudget {
		t.Fatalf("frozen=%v reason=%s, want turn_budget", s.Frozen, s.FreezeReason)
	}
}

func TestState_RandomSequencesStayInBounds(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewPCG(7, 11))

	for run := range 200 {
		s := startedState(t, cfg)
		for !s.Frozen {
			prior := s.CurrentConfidence
			ev, err := s.Observe(Signal{
				IsCorrect:      rng.IntN(2) == 0,
				ReasoningScore: rng.IntN(9) - 2,
				SuggestedLevel: rng.IntN(9) - 2,
				RawConfidence:  rng.Float64()*1.4 - 0.2,
			})
			if err != nil {
				t.Fatalf("run %d: observe: %v", run, err)
			}
			if !levelValid(s.CurrentLevel) || !levelValid(ev.DecidedLevel) || !levelValid(ev.SuggestedLevel) {
				t.Fatalf("run %d: level out of range: %+v", run, ev)
			}
			if s.CurrentConfidence < 0 || s.CurrentConfidence > 1 || ev.RawConfidence < 0 || ev.RawConfidence > 1 {
				t.Fatalf("run %d: confidence out of range: %+v", run, ev)
			}
			if s.CurrentConfidence-prior > cfg.MaxStep+epsilon {
				t.Fatalf("run %d: confidence climbed %v in one turn", run, s.CurrentConfidence-prior)
			}
		}
		if s.TurnCount > cfg.ShotClock {
			t.Fatalf("run %d: diagnosis ran past the shot clock (turn %d)", run, s.TurnCount)
		}
		final, err := s.Finalize()
		if err != nil || !levelValid(final) {
			t.Fatalf("run %d: final=%d err=%v", run, final, err)
		}
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	s := startedState(t, DefaultConfig())
	for _, raw := range []float64{0.4, 0.6, 0.9, 0.9} {
		if _, err := s.Observe(Signal{SuggestedLevel: 4, IsCorrect: true, ReasoningScore: 4, RawConfidence: raw, Misconception: "none"}); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}

	restored, err := Restore(s.Snapshot(), DefaultConfig())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.CurrentLevel != s.CurrentLevel || restored.CurrentConfidence != s.CurrentConfidence || restored.Frozen != s.Frozen {
		t.Fatalf("restored %+v, want %+v", restored, s)
	}
	if len(restored.Trail) != len(s.Trail) {
		t.Fatalf("trail length %d, want %d", len(restored.Trail), len(s.Trail))
	}
	for i := range s.Trail {
		if restored.Trail[i] != s.Trail[i] {
			t.Errorf("trail[%d] = %+v, want %+v", i, restored.Trail[i], s.Trail[i])
		}
	}
}

func TestRestore_RejectsBrokenSnapshots(t *testing.T) {
	base := func() Snapshot {
		return Snapshot{
			LearnerID:    "l",
			TopicID:      "t",
			TurnCount:    3,
			CurrentLevel: 3,
			Phase:        PhaseDiagnosis,
			FreezeReason: FreezeNone,
			Trail:        trailOf(3, 3),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"bad phase", func(s *Snapshot) { s.Phase = "review" }},
		{"bad reason", func(s *Snapshot) { s.FreezeReason = "bored" }},
		{"frozen without reason", func(s *Snapshot) { s.Frozen = true; s.Phase = PhaseTutoring }},
		{"frozen in diagnosis", func(s *Snapshot) { s.Frozen = true; s.FreezeReason = FreezeTurnBudget }},
		{"level out of range", func(s *Snapshot) { s.CurrentLevel = 6 }},
		{"confidence out of range", func(s *Snapshot) { s.CurrentConfidence = 1.5 }},
		{"turns out of order", func(s *Snapshot) { s.Trail[1].Turn = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base()
			tt.mutate(&snap)
			if _, err := Restore(snap, DefaultConfig()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.yaml")
	body := "max_step: 0.15\nambiguity_low: 0.55\nambiguity_high: 0.75\nfinalizer_policy: uncertain\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxStep != 0.15 || cfg.AmbiguityLow != 0.55 || cfg.AmbiguityHigh != 0.75 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.FinalizerPolicy != FinalizeUncertain {
		t.Errorf("policy = %q, want uncertain", cfg.FinalizerPolicy)
	}
	if cfg.ShotClock != 6 || cfg.FreezeThreshold != 0.75 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero step", func(c *Config) { c.MaxStep = 0 }},
		{"inverted band", func(c *Config) { c.AmbiguityLow, c.AmbiguityHigh = 0.7, 0.5 }},
		{"early exit below freeze", func(c *Config) { c.EarlyExitThreshold = 0.5 }},
		{"zero shot clock", func(c *Config) { c.ShotClock = 0 }},
		{"initial level", func(c *Config) { c.InitialLevel = 0 }},
		{"policy", func(c *Config) { c.FinalizerPolicy = "sometimes" }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
