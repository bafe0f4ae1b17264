package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucketRefill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTokenBucket(2, 1, clock.Now)

	assert.True(t, b.TryConsume(1))
	assert.True(t, b.TryConsume(1))
	assert.False(t, b.TryConsume(1))
	assert.Equal(t, time.Second, b.RetryAfter())

	clock.Advance(500 * time.Millisecond)
	assert.False(t, b.TryConsume(1))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, b.TryConsume(1))

	clock.Advance(time.Hour)
	assert.InDelta(t, 2.0, b.Available(), 1e-9)

	b.Return(5)
	assert.InDelta(t, 2.0, b.Available(), 1e-9)
}

func TestConsumeContextCancelled(t *testing.T) {
	b := NewTokenBucket(1, 0.001)
	require.True(t, b.TryConsume(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.ConsumeContext(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(Config{Enabled: false})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.AcquireWithContext(context.Background(), 1_000_000))
	}

	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.AcquireWithContext(context.Background(), 1))
}

func TestLimiterBlocksWhenExhausted(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, RequestsPerMinute: 1, TokensPerMinute: 10, BurstSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// A burst of one request: the second acquire waits past the deadline.
	require.NoError(t, l.AcquireWithContext(ctx, 1))
	err := l.AcquireWithContext(ctx, 1)
	require.Error(t, err)

	stats := l.Stats()
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.BlockedRequests)
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	k := NewKeyedLimiter(true, 1, 2)

	for i := 0; i < 2; i++ {
		ok, _ := k.Allow("alice")
		require.True(t, ok)
	}
	ok, retry := k.Allow("alice")
	assert.False(t, ok)
	assert.Positive(t, retry)

	ok, _ = k.Allow("bob")
	assert.True(t, ok, "each key has a separate bucket")

	off := NewKeyedLimiter(false, 0, 0)
	ok, _ = off.Allow("alice")
	assert.True(t, ok)
}
