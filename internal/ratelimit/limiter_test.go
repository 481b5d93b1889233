package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock advances when slept on, so limiter waits are observable
// without real delays.
type testClock struct {
	now    time.Time
	sleeps []time.Duration
	err    error
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Sleep(_ context.Context, d time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestAcquire_FirstCallImmediate(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewWithClock(Config{Burst: 3, Interval: 20 * time.Second, Cooldown: time.Minute}, clk, clk)

	require.NoError(t, l.Acquire(context.Background()))
	require.Empty(t, clk.sleeps)
}

func TestAcquire_EnforcesIntervalWithinBurst(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewWithClock(Config{Burst: 3, Interval: 20 * time.Second, Cooldown: time.Minute}, clk, clk)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, []time.Duration{20 * time.Second}, clk.sleeps)

	// Time already past the interval: no extra wait.
	clk.now = clk.now.Add(30 * time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	require.Len(t, clk.sleeps, 1)
}

func TestAcquire_CooldownAfterBurstResetsCounter(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewWithClock(Config{Burst: 2, Interval: time.Second, Cooldown: time.Minute}, clk, clk)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	// Third grant exceeds the burst: a full cooldown is forced.
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, time.Minute, clk.sleeps[len(clk.sleeps)-1])

	// Counter was reset, so the next wait is interval-sized again.
	require.NoError(t, l.Acquire(context.Background()))
	require.Equal(t, time.Second, clk.sleeps[len(clk.sleeps)-1])
}

func TestAcquire_ContextCancelAbortsWait(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	clk.err = context.Canceled
	l := NewWithClock(Config{Burst: 1, Interval: time.Second, Cooldown: time.Minute}, clk, clk)

	require.NoError(t, l.Acquire(context.Background()))
	err := l.Acquire(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_SerializesCallers(t *testing.T) {
	t.Parallel()

	l := New(Config{Burst: 100, Interval: 0, Cooldown: 0})
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_ = l.Acquire(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("acquire deadlocked")
		}
	}
}
