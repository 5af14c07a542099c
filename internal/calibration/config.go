package calibration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FinalizerPolicy controls when the windowed median replaces the live level
// at session end.
type FinalizerPolicy string

const (
	// FinalizeAlways reports the windowed median for every session.
	FinalizeAlways FinalizerPolicy = "always"

	// FinalizeUncertain reports the windowed median only for sessions that
	// were not frozen by confidence (shot clock or never frozen). Sessions
	// that froze on confidence report their live level.
	FinalizeUncertain FinalizerPolicy = "uncertain"
)

// Config holds every tunable of the calibration state machine. A Config is
// passed by value into NewState and never mutated afterwards, so sessions
// with different configurations can run side by side.
type Config struct {
	// MaxStep caps how far confidence may climb in one turn. Drops are
	// never capped.
	MaxStep float64 `yaml:"max_step"`

	// ConfidenceCeiling is the highest tracked confidence a session can
	// reach. Must be within (0, 1].
	ConfidenceCeiling float64 `yaml:"confidence_ceiling"`

	// AmbiguityLow and AmbiguityHigh bound the inclusive raw-confidence
	// band inside which the verifier is consulted.
	AmbiguityLow  float64 `yaml:"ambiguity_low"`
	AmbiguityHigh float64 `yaml:"ambiguity_high"`

	// FreezeThreshold freezes the level once tracked confidence reaches it.
	FreezeThreshold float64 `yaml:"freeze_threshold"`

	// EarlyExitThreshold and EarlyExitMinEvidence together trigger an
	// early exit into tutoring.
	EarlyExitThreshold   float64 `yaml:"early_exit_threshold"`
	EarlyExitMinEvidence int     `yaml:"early_exit_min_evidence"`

	// ShotClock is the turn count at which diagnosis ends regardless of
	// confidence. The opener counts as the first turn.
	ShotClock int `yaml:"shot_clock"`

	// PromotionStreak is the number of consecutive suggest-higher turns
	// required before the level moves up by one.
	PromotionStreak int `yaml:"promotion_streak"`

	// DemotionMaxReasoning is the highest reasoning score that still
	// allows an incorrect, suggest-lower turn to demote.
	DemotionMaxReasoning int `yaml:"demotion_max_reasoning"`

	// InitialLevel is the neutral starting level and the final level of a
	// session that never produced evidence.
	InitialLevel int `yaml:"initial_level"`

	// FinalizerWindow is how many trailing evidence records the median
	// considers.
	FinalizerWindow int             `yaml:"finalizer_window"`
	FinalizerPolicy FinalizerPolicy `yaml:"finalizer_policy"`

	// FallbackConfidence is the raw confidence assigned to degraded
	// evidence when the detective cannot be reached.
	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

// DefaultConfig returns the production calibration.
func DefaultConfig() Config {
	return Config{
		MaxStep:              0.20,
		ConfidenceCeiling:    0.95,
		AmbiguityLow:         0.50,
		AmbiguityHigh:        0.65,
		FreezeThreshold:      0.75,
		EarlyExitThreshold:   0.85,
		EarlyExitMinEvidence: 3,
		ShotClock:            6,
		PromotionStreak:      2,
		DemotionMaxReasoning: 2,
		InitialLevel:         3,
		FinalizerWindow:      3,
		FinalizerPolicy:      FinalizeAlways,
		FallbackConfidence:   0.5,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the
// file keep their default values. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read calibration config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse calibration config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid calibration config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	switch {
	case c.MaxStep <= 0 || c.MaxStep > 1:
		return fmt.Errorf("max_step must be in (0, 1], got %v", c.MaxStep)
	case c.ConfidenceCeiling <= 0 || c.ConfidenceCeiling > 1:
		return fmt.Errorf("confidence_ceiling must be in (0, 1], got %v", c.ConfidenceCeiling)
	case c.AmbiguityLow < 0 || c.AmbiguityHigh > 1 || c.AmbiguityLow > c.AmbiguityHigh:
		return fmt.Errorf("ambiguity band [%v, %v] must satisfy 0 <= low <= high <= 1", c.AmbiguityLow, c.AmbiguityHigh)
	case c.FreezeThreshold <= 0 || c.FreezeThreshold > 1:
		return fmt.Errorf("freeze_threshold must be in (0, 1], got %v", c.FreezeThreshold)
	case c.EarlyExitThreshold < c.FreezeThreshold || c.EarlyExitThreshold > 1:
		return fmt.Errorf("early_exit_threshold must be in [freeze_threshold, 1], got %v", c.EarlyExitThreshold)
	case c.EarlyExitMinEvidence < 1:
		return fmt.Errorf("early_exit_min_evidence must be >= 1, got %d", c.EarlyExitMinEvidence)
	case c.ShotClock < 1:
		return fmt.Errorf("shot_clock must be >= 1, got %d", c.ShotClock)
	case c.PromotionStreak < 1:
		return fmt.Errorf("promotion_streak must be >= 1, got %d", c.PromotionStreak)
	case c.DemotionMaxReasoning < MinScore || c.DemotionMaxReasoning > MaxScore:
		return fmt.Errorf("demotion_max_reasoning must be in [%d, %d], got %d", MinScore, MaxScore, c.DemotionMaxReasoning)
	case c.InitialLevel < MinLevel || c.InitialLevel > MaxLevel:
		return fmt.Errorf("initial_level must be in [%d, %d], got %d", MinLevel, MaxLevel, c.InitialLevel)
	case c.FinalizerWindow < 1:
		return fmt.Errorf("finalizer_window must be >= 1, got %d", c.FinalizerWindow)
	case c.FallbackConfidence < 0 || c.FallbackConfidence > 1:
		return fmt.Errorf("fallback_confidence must be in [0, 1], got %v", c.FallbackConfidence)
	}

	switch c.FinalizerPolicy {
	case FinalizeAlways, FinalizeUncertain:
	default:
		return fmt.Errorf("unknown finalizer_policy %q", c.FinalizerPolicy)
	}
	return nil
}
