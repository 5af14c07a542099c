package tutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/llm"
)

// ErrEmptyReply is returned when the model produced no teaching text.
var ErrEmptyReply = errors.New("tutor returned an empty reply")

// Config holds generation settings for the tutor.
type Config struct {
	MaxTokens   int
	Temperature float64
}

func DefaultConfig() Config {
	return Config{MaxTokens: 512, Temperature: 0.6}
}

// TeachInput is the state the tutor adapts to.
type TeachInput struct {
	Topic          string
	Level          int
	Misconceptions []string
	History        []diagnosis.Message
	Reply          string
}

// Tutor writes the next teaching message in the persona matching the
// learner's level.
type Tutor struct {
	provider llm.Provider
	cfg      Config
}

func New(provider llm.Provider, cfg Config) *Tutor {
	return &Tutor{provider: provider, cfg: cfg}
}

func (t *Tutor) Teach(ctx context.Context, in TeachInput) (string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeTutor)

	level := clampLevel(in.Level)
	persona := PersonaFor(level)

	userMsg, err := buildTeachMessage(persona, level, in)
	if err != nil {
		return "", fmt.Errorf("build tutor prompt: %w", err)
	}

	resp, err := t.provider.Generate(ctx, llm.Request{
		System:      persona.systemPrompt(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: t.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("tutor (%s): %w", persona, err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

var teachTemplate = template.Must(template.New("teach").Parse(`Topic: {{.Topic}}
Student level: {{.Level}}/5 ({{.Label}})
Misconceptions: {{.Misconceptions}}

Conversation so far:
{{if .History}}{{range .History}}{{.Role}}: {{.Content}}
{{end}}{{else}}(no previous messages)
{{end}}
Student said: "{{.Reply}}"`))

func buildTeachMessage(p Persona, level int, in TeachInput) (string, error) {
	misconceptions := strings.Join(in.Misconceptions, ", ")
	if misconceptions == "" {
		misconceptions = "none identified"
	}

	var buf bytes.Buffer
	err := teachTemplate.Execute(&buf, map[string]any{
		"Topic":          in.Topic,
		"Level":          level,
		"Label":          p.label(),
		"Misconceptions": misconceptions,
		"History":        in.History,
		"Reply":          in.Reply,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
