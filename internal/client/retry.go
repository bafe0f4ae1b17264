package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"taskflow/internal/logging"
)

// RetryConfig holds retry configuration used across all client implementations.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum backoff delay (cap)
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

func (rc RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if rc.MaxRetries < 0 {
		rc.MaxRetries = 0
	}
	if rc.RetryDelay <= 0 {
		rc.RetryDelay = def.RetryDelay
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = def.MaxDelay
	}
	return rc
}

// CalculateBackoff calculates exponential backoff with up to 25% jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	if delay/4 <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

// withRetry calls fn until it succeeds, fails with a non-retryable error,
// or the retry budget is spent.
func withRetry[T any](ctx context.Context, rc RetryConfig, provider string, fn func() (T, error)) (T, error) {
	rc = rc.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(rc.RetryDelay, attempt-1, rc.MaxDelay)
			logging.Info("retrying model request", "provider", provider, "attempt", attempt, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsRetryableError(err) || ctx.Err() != nil {
			return zero, err
		}
		logging.Warn("model request failed, will retry", "provider", provider, "attempt", attempt, "error", err)
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", rc.MaxRetries, lastErr)
}
