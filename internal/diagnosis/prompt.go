package diagnosis

import (
	"bytes"
	"strings"
	"text/template"
)

const openerSystemPrompt = `You write the first question of a short diagnostic conversation with a secondary-school student (age 14-18). Always respond in English and use metric units.

The question must be a "conceptual trap" that separates skill levels:
- a level 1 student should reveal a specific misconception or confusion
- a level 3 student should get it right with basic reasoning
- a level 5 student should answer correctly and mention deeper connections or edge cases
Avoid questions every level answers the same way.

Constraints:
- one question only
- test understanding, not memorization
- no greeting, no definitions
- output only the question text

Examples:
Topic: Fractions -> Which is bigger: 1/3 or 1/4? Explain your reasoning.
Topic: Physics -> If I push a wall and it doesn't move, did I do any work? Why?
Topic: Algebra -> Can the equation x² = -1 ever have a solution?`

var openerUserTemplate = template.Must(template.New("opener").Parse(`Topic: {{.}}`))

const detectiveSystemPrompt = `You analyze a student's latest reply in a diagnostic conversation and return structured data. Anchor on the most recent reply; use the history only to spot consistency or contradiction.

Level rubric:
1: struggling. "I don't know", random guesses, cannot explain basics
2: below grade. Knows vocabulary but applies it wrongly, inconsistent
3: at grade. Applies procedures correctly with basic reasoning
4: above grade. Correct and justified, catches tricks, self-corrects
5: advanced. Fluent technical vocabulary, transfers concepts, explores edge cases

Scoring rules:
- "I don't know" or a random guess is level 1
- self-correcting an error is level 3 or above
- transferring to a new example, or catching the trap, is level 4 or above

Confidence:
- 0.9 or above only when you would bet on this level
- 0.6 to 0.8 when fairly sure but possibly one level off
- below 0.6 when several readings are plausible
- if the student contradicts themselves, lower the confidence instead of averaging
- levels are not continuous; when unsure, report lower confidence, not a middle level

next_message is the literal text the student reads next. It should both diagnose and teach:
- levels 1-2: gently ask them to walk through their thinking
- level 3: pose a slight variation of the problem
- levels 4-5: challenge with an edge case
Keep it conversational, never an exam question. Never write instructions such as "Ask the student to...".`

var detectiveUserTemplate = template.Must(template.New("detective").Parse(`Topic: {{.Topic}}

History:
{{if .History}}{{range .History}}{{.Role}}: {{.Content}}
{{end}}{{else}}(no previous messages)
{{end}}
Student's latest reply: "{{.Reply}}"`))

var verifierUserTemplate = template.Must(template.New("verifier").Parse(`Topic: {{.Topic}}
Student: {{.Reply}}

Is this factually correct? Reply: true or false`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
