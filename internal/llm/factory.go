package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/skillprobe/internal/store"
)

// NewProvider builds the configured provider wrapped as
// caller → timeout → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, logger *slog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, cfg.Provider, events, logger)
	retried := WithRetry(logged, cfg.Retry)
	return WithTimeout(retried, cfg.Timeout), nil
}

// Providers holds the two LLM clients a calibration run needs.
type Providers struct {
	Main     Provider // opener, detective, tutor
	Verifier Provider // factual check in the ambiguity band
}

// NewProvidersFromEnv reads ConfigFromEnv and builds the main and verifier
// providers. The verifier shares the main provider unless
// SKILLPROBE_VERIFIER_MODEL names a different model.
func NewProvidersFromEnv(ctx context.Context, events store.EventRepo, logger *slog.Logger) (*Providers, error) {
	cfg := ConfigFromEnv()

	main, err := NewProvider(ctx, cfg, events, logger)
	if err != nil {
		return nil, err
	}
	if cfg.VerifierModel == "" {
		return &Providers{Main: main, Verifier: main}, nil
	}

	verifier, err := NewProvider(ctx, cfg.WithModel(cfg.VerifierModel), events, logger)
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	return &Providers{Main: main, Verifier: verifier}, nil
}

// TimeoutProvider bounds each Generate call with a deadline.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps p so every call is cancelled after d. A zero d
// returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &TimeoutProvider{inner: p, timeout: d}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, req)
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}
