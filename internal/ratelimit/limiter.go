package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Limiter throttles model requests by request count and estimated tokens.
type Limiter struct {
	requestBucket *TokenBucket
	tokenBucket   *TokenBucket
	enabled       bool

	totalRequests   atomic.Int64
	blockedRequests atomic.Int64
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	TokensPerMinute   int64
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		TokensPerMinute:   100000,
		BurstSize:         10,
	}
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	requestBurst := float64(cfg.BurstSize)
	if requestBurst < 1 {
		requestBurst = 1
	}
	// Token bucket burst is 10% of the per-minute allowance.
	tokenBurst := float64(cfg.TokensPerMinute) / 10.0

	return &Limiter{
		requestBucket: NewTokenBucket(requestBurst, float64(cfg.RequestsPerMinute)/60.0),
		tokenBucket:   NewTokenBucket(tokenBurst, float64(cfg.TokensPerMinute)/60.0),
		enabled:       cfg.Enabled,
	}
}

// AcquireWithContext waits for a request slot and token capacity.
func (l *Limiter) AcquireWithContext(ctx context.Context, estimatedTokens int64) error {
	if l == nil || !l.enabled {
		return nil
	}
	l.totalRequests.Add(1)

	if err := l.requestBucket.ConsumeContext(ctx, 1); err != nil {
		l.blockedRequests.Add(1)
		return fmt.Errorf("rate limit exceeded: request limit: %w", err)
	}
	if estimatedTokens > 0 {
		if err := l.tokenBucket.ConsumeContext(ctx, float64(estimatedTokens)); err != nil {
			l.requestBucket.Return(1)
			l.blockedRequests.Add(1)
			return fmt.Errorf("rate limit exceeded: token limit: %w", err)
		}
	}
	return nil
}

// ReturnTokens gives back capacity taken by a request that failed.
func (l *Limiter) ReturnTokens(requestTokens int, estimatedTokens int64) {
	if l == nil || !l.enabled {
		return
	}
	if requestTokens > 0 {
		l.requestBucket.Return(float64(requestTokens))
	}
	if estimatedTokens > 0 {
		l.tokenBucket.Return(float64(estimatedTokens))
	}
}

// Stats holds rate limiter statistics.
type Stats struct {
	Enabled           bool
	TotalRequests     int64
	BlockedRequests   int64
	AvailableRequests float64
	AvailableTokens   float64
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() Stats {
	return Stats{
		Enabled:           l.enabled,
		TotalRequests:     l.totalRequests.Load(),
		BlockedRequests:   l.blockedRequests.Load(),
		AvailableRequests: l.requestBucket.Available(),
		AvailableTokens:   l.tokenBucket.Available(),
	}
}

// EstimateTokens estimates the number of tokens for a prompt (~4 chars/token).
func EstimateTokens(prompt string) int64 {
	return int64(len(prompt) / 4)
}

// KeyedLimiter keeps one request bucket per key, used to throttle each user
// independently at the HTTP edge.
type KeyedLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	burst     float64
	perSecond float64
	enabled   bool
}

// NewKeyedLimiter creates a limiter allowing requestsPerMinute per key with
// the given burst.
func NewKeyedLimiter(enabled bool, requestsPerMinute, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		buckets:   make(map[string]*TokenBucket),
		burst:     float64(burst),
		perSecond: float64(requestsPerMinute) / 60.0,
		enabled:   enabled,
	}
}

// Allow takes one request for key. When it returns false, retryAfter
// estimates when the next request will be admitted.
func (k *KeyedLimiter) Allow(key string) (ok bool, retryAfter int64) {
	if k == nil || !k.enabled {
		return true, 0
	}
	k.mu.Lock()
	b, found := k.buckets[key]
	if !found {
		b = NewTokenBucket(k.burst, k.perSecond)
		k.buckets[key] = b
	}
	k.mu.Unlock()

	if b.TryConsume(1) {
		return true, 0
	}
	secs := int64(b.RetryAfter().Seconds()) + 1
	return false, secs
}
