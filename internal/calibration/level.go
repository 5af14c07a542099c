package calibration

// UpdateLevel applies the asymmetric promotion/demotion rule to one signal
// and returns the new level and promotion streak.
//
// Promotion needs cfg.PromotionStreak consecutive suggest-higher turns.
// Demotion needs a suggest-lower turn that is also incorrect with weak
// reasoning. Every turn that does not promote resets the streak.
func UpdateLevel(level, streak int, sig Signal, cfg Config) (int, int) {
	switch {
	case sig.SuggestedLevel > level:
		streak++
		if streak >= cfg.PromotionStreak {
			level++
			streak = 0
		}
	case sig.SuggestedLevel < level && !sig.IsCorrect && sig.ReasoningScore <= cfg.DemotionMaxReasoning:
		level--
		streak = 0
	default:
		streak = 0
	}
	return clampInt(level, MinLevel, MaxLevel), streak
}
