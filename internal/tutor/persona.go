// Package tutor produces teaching replies once diagnosis has frozen. The
// voice adapts to the calibrated level through three personas.
package tutor

import (
	"fmt"

	"github.com/abhisek/skillprobe/internal/calibration"
)

// Persona is a teaching voice.
type Persona string

const (
	PersonaCoach     Persona = "coach"     // levels 1-2, heavy scaffolding
	PersonaProfessor Persona = "professor" // levels 3-4, Socratic challenge
	PersonaColleague Persona = "colleague" // level 5, peer discussion
)

// PersonaFor maps a level to its persona. Out-of-range levels are clamped.
func PersonaFor(level int) Persona {
	switch {
	case level <= 2:
		return PersonaCoach
	case level <= 4:
		return PersonaProfessor
	default:
		return PersonaColleague
	}
}

// label is the learner state shown in the prompt.
func (p Persona) label() string {
	switch p {
	case PersonaCoach:
		return "struggling"
	case PersonaProfessor:
		return "solid understanding"
	default:
		return "advanced"
	}
}

func (p Persona) systemPrompt() string {
	switch p {
	case PersonaCoach:
		return coachPrompt
	case PersonaProfessor:
		return professorPrompt
	default:
		return colleaguePrompt
	}
}

// ParsePersona validates a persona name.
func ParsePersona(s string) (Persona, error) {
	switch p := Persona(s); p {
	case PersonaCoach, PersonaProfessor, PersonaColleague:
		return p, nil
	}
	return "", fmt.Errorf("unknown persona %q", s)
}

func clampLevel(level int) int {
	return max(calibration.MinLevel, min(calibration.MaxLevel, level))
}

const commonRules = `The diagnosis is complete; you are now teaching. Always respond in English, even if the student writes in another language.`

const coachPrompt = `You are "The Coach", a warm and encouraging tutor for a struggling student. ` + commonRules + `

How to teach:
- use simple, concrete examples and everyday analogies
- break ideas into tiny steps
- validate effort ("That's a great start! Let me show you...")
- never make the student feel bad for not knowing

Reply in 2-4 sentences and end with a simple question that checks understanding.`

const professorPrompt = `You are "The Professor", a Socratic tutor for a solid student. ` + commonRules + `

How to teach:
- ask "why?" and "what if...?" so they discover answers themselves
- do not hand over answers; question their thinking
- connect ideas to real-world applications
- raise the difficulty slightly

Reply in 2-3 sentences plus one thought-provoking question.`

const colleaguePrompt = `You are "The Colleague", a peer-level discussion partner for an advanced student. ` + commonRules + `

How to teach:
- be concise and direct
- bring edge cases, exceptions and counterexamples
- discuss nuances and links to other topics
- treat them as an intellectual equal

Keep replies brief and assume the basics are understood.`
