package transport

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://knowunity-agent-olympics-2026-api.vercel.app"

// Set types understood by the simulation service.
const (
	SetMiniDev = "mini_dev"
	SetDev     = "dev"
	SetEval    = "eval"
)

// Config configures the learner-simulation client.
type Config struct {
	BaseURL string
	APIKey  string

	// SetType is the learner set used when a call does not name one.
	SetType string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		SetType:     SetMiniDev,
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     8 * time.Second,
	}
}

// ConfigFromEnv overlays SKILLPROBE_API_* variables on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SKILLPROBE_API_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	cfg.APIKey = os.Getenv("SKILLPROBE_API_KEY")
	if v := os.Getenv("SKILLPROBE_SET_TYPE"); v != "" {
		cfg.SetType = v
	}
	if v := os.Getenv("SKILLPROBE_API_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("SKILLPROBE_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}

	return cfg
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.APIKey == "" {
		return errors.New("api key is required (set SKILLPROBE_API_KEY)")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}
