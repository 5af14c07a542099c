package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryProvider retries transient failures with jittered exponential
// backoff. The attempt budget depends on the call's purpose: a verifier
// error already leaves the turn's signal unchanged, so spending the turn's
// latency on retrying it buys nothing.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	purpose := PurposeFrom(ctx)
	attempts := r.config.attemptsFor(purpose)
	shapeRetried := false

	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= attempts || !Transient(err) {
			return nil, err
		}

		// A second malformed answer to the same prompt is unlikely to
		// turn into a good third one.
		var invalid *ErrInvalidResponse
		if errors.As(err, &invalid) {
			if shapeRetried {
				return nil, err
			}
			shapeRetried = true
		}

		wait := r.config.wait(attempt, err)
		slog.DebugContext(ctx, "retrying llm request",
			slog.String("purpose", purpose),
			slog.Int("attempt", attempt),
			slog.Int("budget", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// attemptsFor returns the call budget for purpose, never less than one.
func (c RetryConfig) attemptsFor(purpose string) int {
	n, ok := c.PurposeAttempts[purpose]
	if !ok {
		n = c.MaxAttempts
	}
	return max(n, 1)
}

// wait is the pause after the given failed attempt (1-based). A rate
// limit's RetryAfter wins over the computed backoff.
func (c RetryConfig) wait(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	d := float64(c.InitialWait)
	for range attempt - 1 {
		d *= c.Multiplier
	}
	d = min(d, float64(c.MaxWait))

	// ±20% jitter
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(d)
}
