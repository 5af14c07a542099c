package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/skillprobe/internal/llm"
)

// DetectiveConfig holds generation settings for the detective.
type DetectiveConfig struct {
	MaxTokens   int
	Temperature float64
}

func DefaultDetectiveConfig() DetectiveConfig {
	return DetectiveConfig{
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Detective reads each learner reply and returns a structured Analysis.
type Detective struct {
	provider llm.Provider
	cfg      DetectiveConfig
}

func NewDetective(provider llm.Provider, cfg DetectiveConfig) *Detective {
	return &Detective{provider: provider, cfg: cfg}
}

// Analyze asks the LLM for a structured reading of in.Reply. The result is
// clamped and never nil on success. Errors mean the provider failed after
// its own retries; callers fall back to a degraded signal.
func (d *Detective) Analyze(ctx context.Context, in DetectiveInput) (*Analysis, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeDetective)

	userMsg, err := render(detectiveUserTemplate, in)
	if err != nil {
		return nil, fmt.Errorf("build detective prompt: %w", err)
	}

	resp, err := d.provider.Generate(ctx, llm.Request{
		System:      detectiveSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      AnalysisSchema,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("detective: %w", err)
	}

	var a Analysis
	if err := json.Unmarshal(resp.Content, &a); err != nil {
		return nil, fmt.Errorf("parse detective response: %w", err)
	}
	a.normalize()
	return &a, nil
}
