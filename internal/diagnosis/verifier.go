package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/skillprobe/internal/llm"
)

// ErrUnclearVerdict is returned when the verifier answers neither true
// nor false.
var ErrUnclearVerdict = errors.New("verifier gave no true/false verdict")

// Verifier is a cheap yes/no factual check of a learner reply. It
// satisfies calibration.Corroborator.
type Verifier struct {
	provider  llm.Provider
	maxTokens int
}

// NewVerifier builds a verifier. The provider is usually a smaller model
// than the detective's.
func NewVerifier(provider llm.Provider) *Verifier {
	return &Verifier{provider: provider, maxTokens: 16}
}

func (v *Verifier) Corroborate(ctx context.Context, topic, reply string) (bool, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeVerifier)

	prompt, err := render(verifierUserTemplate, struct{ Topic, Reply string }{topic, reply})
	if err != nil {
		return false, fmt.Errorf("build verifier prompt: %w", err)
	}

	resp, err := v.provider.Generate(ctx, llm.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: v.maxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}

	return parseVerdict(resp.Text())
}

// parseVerdict accepts "true"/"false" in any case, with surrounding
// punctuation or a trailing explanation.
func parseVerdict(text string) (bool, error) {
	word := strings.ToLower(strings.TrimSpace(text))
	word = strings.TrimLeft(word, "\"'`*")
	switch {
	case strings.HasPrefix(word, "true"):
		return true, nil
	case strings.HasPrefix(word, "false"):
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnclearVerdict, text)
}
