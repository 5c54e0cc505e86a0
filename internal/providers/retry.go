package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// HTTPError carries a provider HTTP status for retry classification.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, body)
}

// RetryConfig bounds retries on transient provider failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
}

// retryable reports whether the request should be retried: rate limiting
// and server-side errors only. Client errors (4xx) fail immediately.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}
	return false
}

// RetryDo invokes fn with exponential backoff on retryable errors.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * time.Duration(1<<(attempt-1))
			slog.Debug("provider retry", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
