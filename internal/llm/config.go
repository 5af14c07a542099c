package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// VerifierModel is the model used for the yes/no factual check inside
	// the ambiguity band. Empty means the main model.
	VerifierModel string

	// Timeout bounds a single LLM request including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // OpenAI-compatible endpoints
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// PurposeAttempts overrides MaxAttempts for calls labelled with a
	// purpose via WithPurpose.
	PurposeAttempts map[string]int
}

// DefaultConfig returns a Config with the default model for every provider.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  AnthropicConfig{Model: "claude-sonnet"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "openai/gpt-4o"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
			PurposeAttempts: map[string]int{
				PurposeVerifier: 1,
			},
		},
		Timeout: 60 * time.Second,
	}
}

// ConfigFromEnv builds a Config from SKILLPROBE_* variables. When no
// provider is named, the standard vendor key variables are checked via
// DiscoverConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	p := os.Getenv("SKILLPROBE_LLM_PROVIDER")
	if p == "" {
		if discovered, ok := DiscoverConfig(); ok {
			cfg = discovered
		}
	} else {
		cfg.Provider = p
	}

	setString(&cfg.Anthropic.APIKey, "SKILLPROBE_ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "SKILLPROBE_ANTHROPIC_MODEL")
	setString(&cfg.Anthropic.BaseURL, "SKILLPROBE_ANTHROPIC_BASE_URL")

	setString(&cfg.OpenAI.APIKey, "SKILLPROBE_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "SKILLPROBE_OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "SKILLPROBE_OPENAI_BASE_URL")

	setString(&cfg.Gemini.APIKey, "SKILLPROBE_GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "SKILLPROBE_GEMINI_MODEL")

	setString(&cfg.OpenRouter.APIKey, "SKILLPROBE_OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "SKILLPROBE_OPENROUTER_MODEL")
	setString(&cfg.OpenRouter.BaseURL, "SKILLPROBE_OPENROUTER_BASE_URL")

	setString(&cfg.VerifierModel, "SKILLPROBE_VERIFIER_MODEL")

	if v := os.Getenv("SKILLPROBE_LLM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("SKILLPROBE_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}

	return cfg
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// DiscoverConfig checks the vendor API key variables in priority order
// (Anthropic, OpenAI, Gemini, OpenRouter) and returns a Config for the
// first key found.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Provider = ProviderAnthropic
		cfg.Anthropic.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		cfg.Provider = ProviderOpenAI
		cfg.OpenAI.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		cfg.Provider = ProviderGemini
		cfg.Gemini.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		cfg.Provider = ProviderOpenRouter
		cfg.OpenRouter.APIKey = k
		return cfg, true
	}

	return Config{}, false
}

// WithModel returns a copy of c with the selected provider's model
// replaced. An empty model leaves c unchanged.
func (c Config) WithModel(model string) Config {
	if model == "" {
		return c
	}
	switch c.Provider {
	case ProviderAnthropic:
		c.Anthropic.Model = model
	case ProviderOpenAI:
		c.OpenAI.Model = model
	case ProviderGemini:
		c.Gemini.Model = model
	case ProviderOpenRouter:
		c.OpenRouter.Model = model
	}
	return c
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("SKILLPROBE_ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("SKILLPROBE_OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("SKILLPROBE_GEMINI_API_KEY is required for the gemini provider")
		}
	case ProviderOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("SKILLPROBE_OPENROUTER_API_KEY is required for the openrouter provider")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
