package diagnosis

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/skillprobe/internal/llm"
)

// ErrEmptyQuestion is returned when the opener produced no text.
var ErrEmptyQuestion = errors.New("opener returned an empty question")

// Opener writes the first, level-discriminating question for a topic.
type Opener struct {
	provider    llm.Provider
	maxTokens   int
	temperature float64
}

func NewOpener(provider llm.Provider) *Opener {
	return &Opener{provider: provider, maxTokens: 256, temperature: 0.7}
}

func (o *Opener) Open(ctx context.Context, topic string) (string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeOpener)

	userMsg, err := render(openerUserTemplate, topic)
	if err != nil {
		return "", fmt.Errorf("build opener prompt: %w", err)
	}

	resp, err := o.provider.Generate(ctx, llm.Request{
		System:      openerSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("opener: %w", err)
	}

	q := resp.Text()
	if q == "" {
		return "", ErrEmptyQuestion
	}
	return q, nil
}
