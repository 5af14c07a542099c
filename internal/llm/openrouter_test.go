package llm

import (
	"math"
	"testing"
)

func TestNewOpenRouterProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenRouterConfig
		wantErr bool
	}{
		{"default base URL", OpenRouterConfig{APIKey: "sk-or", Model: "openai/gpt-4o"}, false},
		{"custom base URL", OpenRouterConfig{APIKey: "sk-or", Model: "openai/gpt-4o", BaseURL: "https://router.example/v1"}, false},
		{"vendor model passes through", OpenRouterConfig{APIKey: "sk-or", Model: "anthropic/claude-3-haiku"}, false},
		{"empty API key", OpenRouterConfig{Model: "openai/gpt-4o"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewOpenRouterProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.ModelID() != tt.cfg.Model {
				t.Errorf("model = %q, want %q", p.ModelID(), tt.cfg.Model)
			}
		})
	}
}

func TestLookupCost(t *testing.T) {
	c := LookupCost("openai/gpt-4o-mini")
	if c == nil {
		t.Fatal("expected pricing for vendor-prefixed gpt-4o-mini")
	}
	if got := c.Cost(1_000_000, 1_000_000); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("cost = %v, want 0.75", got)
	}
	if LookupCost("no-such-model") != nil {
		t.Error("expected nil for unknown model")
	}
}
