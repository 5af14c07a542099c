package diagnosis

import (
	"strings"

	"github.com/abhisek/skillprobe/internal/calibration"
)

// Role names a transcript speaker.
type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
)

// Message is one line of the learner dialogue.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DetectiveInput is everything the detective sees for one learner reply.
type DetectiveInput struct {
	Topic   string
	History []Message // prior dialogue, oldest first
	Reply   string    // the learner's latest message
}

// Analysis is the detective's reading of one learner reply.
type Analysis struct {
	IsCorrect      bool    `json:"is_correct"`
	ReasoningScore int     `json:"reasoning_score"`
	Misconception  string  `json:"misconception"`
	EstimatedLevel int     `json:"estimated_level"`
	Confidence     float64 `json:"confidence"`
	NextMessage    string  `json:"next_message"`
}

// FallbackNextMessage keeps the conversation going when the detective
// produced no usable follow-up.
const FallbackNextMessage = "Let's continue. Can you tell me more about your thinking?"

// Signal converts the analysis into a calibration signal, clamping every
// numeric field.
func (a *Analysis) Signal() calibration.Signal {
	return calibration.Signal{
		IsCorrect:      a.IsCorrect,
		ReasoningScore: a.ReasoningScore,
		Misconception:  a.Misconception,
		SuggestedLevel: a.EstimatedLevel,
		RawConfidence:  a.Confidence,
	}.Clamp()
}

// normalize clamps scores and fills blanks so downstream code never sees
// out-of-range values.
func (a *Analysis) normalize() {
	sig := a.Signal()
	a.ReasoningScore = sig.ReasoningScore
	a.EstimatedLevel = sig.SuggestedLevel
	a.Confidence = sig.RawConfidence

	a.Misconception = strings.TrimSpace(a.Misconception)
	switch strings.ToLower(a.Misconception) {
	case "none", "null", "n/a":
		a.Misconception = ""
	}

	a.NextMessage = strings.TrimSpace(a.NextMessage)
	if a.NextMessage == "" {
		a.NextMessage = FallbackNextMessage
	}
}
