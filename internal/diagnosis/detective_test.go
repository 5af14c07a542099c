package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhisek/skillprobe/internal/llm"
)

func TestDetective_Analyze(t *testing.T) {
	resp := json.RawMessage(`{
		"is_correct": false,
		"reasoning_score": 2,
		"misconception": "adds denominators",
		"estimated_level": 2,
		"confidence": 0.7,
		"next_message": "Can you walk me through how you got 2/5?"
	}`)
	mock := llm.NewMockProvider(llm.MockResponse{Content: resp})
	d := NewDetective(mock, DefaultDetectiveConfig())

	a, err := d.Analyze(context.Background(), DetectiveInput{
		Topic: "Fractions",
		History: []Message{
			{Role: RoleTutor, Content: "What is 1/2 + 1/3?"},
		},
		Reply: "2/5",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.IsCorrect || a.ReasoningScore != 2 || a.EstimatedLevel != 2 || a.Confidence != 0.7 {
		t.Errorf("unexpected analysis: %+v", a)
	}
	if a.Misconception != "adds denominators" {
		t.Errorf("misconception = %q", a.Misconception)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0]
	if req.Schema != AnalysisSchema {
		t.Error("detective must request the analysis schema")
	}
	msg := req.Messages[0].Content
	for _, want := range []string{"Topic: Fractions", "tutor: What is 1/2 + 1/3?", `Student's latest reply: "2/5"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt missing %q:\n%s", want, msg)
		}
	}
}

func TestDetective_EmptyHistory(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(Analysis{ReasoningScore: 3, EstimatedLevel: 3, Confidence: 0.5, NextMessage: "ok"}))
	d := NewDetective(mock, DefaultDetectiveConfig())

	if _, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Algebra", Reply: "x = 2"}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if msg := mock.Calls()[0].Messages[0].Content; !strings.Contains(msg, "(no previous messages)") {
		t.Errorf("empty history not rendered:\n%s", msg)
	}
}

func TestDetective_ClampsAndFillsBlanks(t *testing.T) {
	resp := json.RawMessage(`{"is_correct":true,"reasoning_score":9,"misconception":" None ","estimated_level":0,"confidence":1.7,"next_message":"  "}`)
	d := NewDetective(llm.NewMockProvider(llm.MockResponse{Content: resp}), DefaultDetectiveConfig())

	a, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Physics", Reply: "work is zero"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if a.ReasoningScore != 5 || a.EstimatedLevel != 1 || a.Confidence != 1 {
		t.Errorf("values not clamped: %+v", a)
	}
	if a.Misconception != "" {
		t.Errorf("placeholder misconception kept: %q", a.Misconception)
	}
	if a.NextMessage != FallbackNextMessage {
		t.Errorf("next message = %q, want fallback", a.NextMessage)
	}
}

func TestDetective_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	d := NewDetective(mock, DefaultDetectiveConfig())

	_, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Fractions", Reply: "?"})
	var unavail *llm.ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected wrapped ErrProviderUnavailable, got %v", err)
	}
}

func TestDetective_MalformedJSON(t *testing.T) {
	d := NewDetective(llm.NewMockProvider(llm.MockText("not json")), DefaultDetectiveConfig())
	if _, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Fractions", Reply: "?"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAnalysisSignal(t *testing.T) {
	a := &Analysis{IsCorrect: true, ReasoningScore: -1, Misconception: "m", EstimatedLevel: 7, Confidence: 0.55}
	sig := a.Signal()
	if !sig.IsCorrect || sig.ReasoningScore != 1 || sig.SuggestedLevel != 5 || sig.RawConfidence != 0.55 || sig.Misconception != "m" {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if sig.Corroborated || sig.Overridden || sig.Degraded {
		t.Errorf("fresh signal carries gate flags: %+v", sig)
	}
}

// openAIServer answers every chat completion with content and counts calls.
func openAIServer(t *testing.T, content string) (*llm.OpenAIProvider, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-detective",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
		})
	}))
	t.Cleanup(srv.Close)

	p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: "test-key", Model: "gpt-mini", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p, &calls
}

func TestDetective_OutOfRangeThroughValidatingProvider(t *testing.T) {
	p, calls := openAIServer(t, `{"is_correct":true,"reasoning_score":7,"misconception":"","estimated_level":6,"confidence":1.3,"next_message":"Nice. Why does that work?"}`)
	retry := llm.DefaultConfig().Retry
	retry.InitialWait = time.Millisecond
	retry.MaxWait = time.Millisecond

	d := NewDetective(llm.WithRetry(p, retry), DefaultDetectiveConfig())
	a, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Fractions", Reply: "5/6, using a common denominator of 6"})
	if err != nil {
		t.Fatalf("out-of-range values must be clamped, not rejected: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
	if a.EstimatedLevel != 5 || a.ReasoningScore != 5 || a.Confidence != 1 {
		t.Errorf("values not clamped: %+v", a)
	}
	if sig := a.Signal(); sig.Degraded || sig.SuggestedLevel != 5 {
		t.Errorf("signal = %+v", sig)
	}
}

func TestDetective_WrongShapeThroughValidatingProvider(t *testing.T) {
	p, calls := openAIServer(t, `{"is_correct":"yes","reasoning_score":3}`)
	retry := llm.DefaultConfig().Retry
	retry.InitialWait = time.Millisecond
	retry.MaxWait = time.Millisecond

	d := NewDetective(llm.WithRetry(p, retry), DefaultDetectiveConfig())
	_, err := d.Analyze(context.Background(), DetectiveInput{Topic: "Fractions", Reply: "yes"})

	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) || invalid.Schema != AnalysisSchema.Name {
		t.Fatalf("expected ErrInvalidResponse for %s, got %v", AnalysisSchema.Name, err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("provider called %d times, want 2 (one shape retry)", n)
	}
}
