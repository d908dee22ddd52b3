package ratelimit

import (
	"context"
	"testing"
	"time"

	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

// fakeClock drives the limiter without real waiting: sleeping advances the
// clock instead.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) wire(l *Limiter) {
	l.now = func() time.Time { return c.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.now = c.now.Add(d)
		return nil
	}
}

func TestAcquireNeverExceedsWindowBudget(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := New(Config{RequestsPerMinute: 60, MaxRetries: 5}, nil)
	clock.wire(l)

	grants := make([]time.Time, 0, 120)
	for i := 0; i < 120; i++ {
		require.NoError(t, l.Acquire(ctx, "coins"))
		grants = append(grants, clock.now)
		clock.now = clock.now.Add(100 * time.Millisecond)
	}

	// no rolling sixty second span may contain more than sixty grants
	for i := range grants {
		count := 0
		for j := i; j < len(grants); j++ {
			if grants[j].Sub(grants[i]) < time.Minute {
				count++
			}
		}
		assert.LessOrEqual(t, count, 60, "window starting at grant %d", i)
	}
}

func TestAcquireIsolatesSources(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := New(Config{RequestsPerMinute: 2, MaxRetries: 5}, nil)
	clock.wire(l)

	require.NoError(t, l.Acquire(ctx, "a"))
	require.NoError(t, l.Acquire(ctx, "a"))

	// source a is exhausted; source b still has budget at the same instant
	before := clock.now
	require.NoError(t, l.Acquire(ctx, "b"))
	assert.Equal(t, before, clock.now)

	require.NoError(t, l.Acquire(ctx, "a"))
	assert.True(t, clock.now.After(before))
}

func TestPerSourceLimitOverride(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := New(Config{RequestsPerMinute: 60, MaxRetries: 5}, map[string]int{"slow": 1})
	clock.wire(l)

	require.NoError(t, l.Acquire(ctx, "slow"))
	before := clock.now
	require.NoError(t, l.Acquire(ctx, "slow"))
	assert.Equal(t, time.Minute, clock.now.Sub(before))
}

func TestOnFailureArmsBackoff(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := New(Config{
		RequestsPerMinute: 60,
		MaxRetries:        5,
		Backoff:           Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: 0},
	}, nil)
	clock.wire(l)

	backoffs := 0
	l.NotifyBackoff(func() { backoffs++ })

	require.NoError(t, l.Acquire(ctx, "coins"))
	require.NoError(t, l.OnFailure("coins", true))

	stats := l.Stats("coins")
	assert.Equal(t, 1, stats.Attempts)
	assert.Equal(t, 1, backoffs)
	assert.Equal(t, clock.now.Add(time.Second), stats.BackoffUntil)

	before := clock.now
	require.NoError(t, l.Acquire(ctx, "coins"))
	assert.Equal(t, time.Second, clock.now.Sub(before))

	l.OnSuccess("coins")
	assert.Equal(t, 0, l.Stats("coins").Attempts)
	assert.True(t, l.Stats("coins").BackoffUntil.IsZero())
}

func TestOnFailureExhaustsRetryBudget(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, MaxRetries: 3}, nil)
	newFakeClock().wire(l)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.OnFailure("coins", true))
	}
	err := l.OnFailure("coins", true)
	assert.True(t, errors.Is(err, exception.ErrSourceUnavailable))
}

func TestOnFailureNonRetriable(t *testing.T) {
	l := New(DefaultConfig(), nil)
	err := l.OnFailure("coins", false)
	assert.True(t, errors.Is(err, exception.ErrSourceUnavailable))
	assert.Equal(t, 0, l.Stats("coins").Attempts)
}

func TestAcquireHonorsContext(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1, MaxRetries: 5}, nil)
	clock := newFakeClock()
	clock.wire(l)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx, "coins"))
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx, "coins"), context.Canceled)
}

func TestBackoffGrowthAndCap(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2, Jitter: 0}

	assert.Equal(t, time.Second, b.Next(1))
	assert.Equal(t, 2*time.Second, b.Next(2))
	assert.Equal(t, 4*time.Second, b.Next(3))
	assert.Equal(t, 8*time.Second, b.Next(4))
	assert.Equal(t, 10*time.Second, b.Next(5))
	assert.Equal(t, 10*time.Second, b.Next(20))
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}
