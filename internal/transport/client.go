// Package transport talks to the learner-simulation service: it lists
// learners and topics, relays tutor messages and submits predictions.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoConversation is returned when the service starts a conversation
// without an id.
var ErrNoConversation = errors.New("service returned no conversation id")

// Client is an HTTP/JSON client for the learner-simulation service. Safe
// for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetType returns the default learner set.
func (c *Client) SetType() string {
	return c.cfg.SetType
}

func (c *Client) setType(s string) string {
	if s == "" {
		return c.cfg.SetType
	}
	return s
}

func (c *Client) ListStudents(ctx context.Context, setType string) ([]Student, error) {
	var out struct {
		Students []Student `json:"students"`
	}
	q := url.Values{"set_type": {c.setType(setType)}}
	if err := c.do(ctx, http.MethodGet, "/students", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out.Students, nil
}

func (c *Client) ListTopics(ctx context.Context, studentID string) ([]Topic, error) {
	var out struct {
		Topics []Topic `json:"topics"`
	}
	path := "/students/" + url.PathEscape(studentID) + "/topics"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list topics for %s: %w", studentID, err)
	}
	return out.Topics, nil
}

// Start opens a conversation and returns its id.
func (c *Client) Start(ctx context.Context, studentID, topicID string) (string, error) {
	body := map[string]string{"student_id": studentID, "topic_id": topicID}
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/interact/start", nil, body, &out); err != nil {
		return "", fmt.Errorf("start conversation: %w", err)
	}
	if out.ConversationID == "" {
		return "", ErrNoConversation
	}
	return out.ConversationID, nil
}

// Interact sends one tutor message and returns the learner's reply.
func (c *Client) Interact(ctx context.Context, conversationID, message string) (*Exchange, error) {
	body := map[string]string{"conversation_id": conversationID, "tutor_message": message}
	var out Exchange
	if err := c.do(ctx, http.MethodPost, "/interact", nil, body, &out); err != nil {
		return nil, fmt.Errorf("interact: %w", err)
	}
	return &out, nil
}

func (c *Client) SubmitPredictions(ctx context.Context, preds []Prediction, setType string) (*MSEResult, error) {
	body := struct {
		Predictions []Prediction `json:"predictions"`
		SetType     string       `json:"set_type"`
	}{preds, c.setType(setType)}

	var out MSEResult
	if err := c.do(ctx, http.MethodPost, "/evaluate/mse", nil, body, &out); err != nil {
		return nil, fmt.Errorf("submit predictions: %w", err)
	}
	return &out, nil
}

// EvaluateTutoring asks the service to grade every conversation of a set.
// The score layout is owned by the service and returned as-is.
func (c *Client) EvaluateTutoring(ctx context.Context, setType string) (map[string]any, error) {
	body := map[string]string{"set_type": c.setType(setType)}
	out := map[string]any{}
	if err := c.do(ctx, http.MethodPost, "/evaluate/tutoring", nil, body, &out); err != nil {
		return nil, fmt.Errorf("evaluate tutoring: %w", err)
	}
	return out, nil
}

// do sends one JSON request, retrying network errors, 429 and 5xx with
// exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := range c.cfg.MaxAttempts {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			slog.DebugContext(ctx, "retrying api request",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		data, err := c.send(ctx, method, endpoint, payload)
		if err == nil {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			break
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Anything else came from the network.
	return true
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := float64(c.cfg.InitialWait) * math.Pow(2, float64(attempt))
	if wait > float64(c.cfg.MaxWait) {
		wait = float64(c.cfg.MaxWait)
	}
	jitter := wait * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(wait + jitter)
}
