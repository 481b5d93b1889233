// Package ratelimit bounds the call rate to the external generation
// service with a burst/interval/cooldown cycle.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// Config holds the limiter parameters.
type Config struct {
	// Burst is the number of calls granted before a cooldown.
	Burst int
	// Interval is the minimum spacing between grants within a burst.
	Interval time.Duration
	// Cooldown is the forced pause once Burst calls have been granted.
	Cooldown time.Duration
}

// Limiter serializes callers of the generation service. All state lives
// behind one mutex; Acquire blocks until a grant is safe. The limiter is
// process-local and does not coordinate across instances.
type Limiter struct {
	cfg     Config
	clock   clock.Clock
	sleeper clock.Sleeper

	mu        sync.Mutex
	calls     int
	lastGrant time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:     cfg,
		clock:   clock.NewSystem(),
		sleeper: clock.NewSystem(),
	}
}

// NewWithClock creates a Limiter with injected time sources for tests.
func NewWithClock(cfg Config, clk clock.Clock, sleeper clock.Sleeper) *Limiter {
	l := New(cfg)
	l.clock = clk
	l.sleeper = sleeper
	return l
}

// Acquire blocks until the caller may issue one call, honoring the
// context. The mutex is held across any sleep, so concurrent callers
// queue up behind it.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.clock.Now()
	if l.calls >= l.cfg.Burst {
		if err := l.sleeper.Sleep(ctx, l.cfg.Cooldown); err != nil {
			return fmt.Errorf("rate limit cooldown: %w", err)
		}
		l.calls = 0
	} else if !l.lastGrant.IsZero() && l.cfg.Interval > 0 {
		if wait := l.cfg.Interval - l.clock.Now().Sub(l.lastGrant); wait > 0 {
			if err := l.sleeper.Sleep(ctx, wait); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}
	}

	now := l.clock.Now()
	l.calls++
	l.lastGrant = now
	if waited := now.Sub(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(waited)
	}
	return nil
}
