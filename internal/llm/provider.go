package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is the core abstraction for LLM interaction.
type Provider interface {
	// Generate sends a prompt and returns the model output. When
	// req.Schema is set the output is JSON validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	System string

	// Messages is the conversation history, oldest first.
	Messages []Message

	// Schema, when set, asks the provider for JSON conforming to it.
	// When nil the response Content is the raw text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]; zero is treated as unset.
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name is kebab-case, e.g. "learner-analysis". It doubles as the
	// compiled-schema cache key.
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the LLM's output.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Text returns the response as trimmed plain text. A JSON string literal
// is unquoted so text-only callers work with every provider.
func (r *Response) Text() string {
	raw := strings.TrimSpace(string(r.Content))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return raw
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
