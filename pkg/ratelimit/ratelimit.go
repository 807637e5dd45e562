// Package ratelimit paces outbound fetches so the scrape engine stays within
// the wrapped proxy's request-rate expectations. One Limiter guards the
// per-page enrichment loop; the pacing policy (rate plus jitter) is supplied
// by configuration rather than baked into the engine.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces calls at a fixed minimum interval with optional jitter.
// Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 .. 1.0, fraction of interval added at random
	next     time.Time
}

// New returns a Limiter allowing one call per interval. A zero or negative
// interval yields a limiter that never blocks. Jitter outside [0,1] is clamped.
func New(interval time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if interval < 0 {
		interval = 0
	}
	return &Limiter{interval: interval, jitter: jitter}
}

// PerSecond returns a Limiter admitting rps calls per second. rps <= 0 means
// unlimited.
func PerSecond(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return New(0, 0)
	}
	return New(time.Duration(float64(time.Second)/rps), jitter)
}

// Wait blocks until the next slot opens or the context is cancelled. The first
// call never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	var sleep time.Duration
	if l.next.After(now) {
		sleep = l.next.Sub(now)
	}
	step := l.interval
	if l.jitter > 0 {
		step += time.Duration(rand.Float64() * l.jitter * float64(l.interval))
	}
	if l.next.Before(now) {
		l.next = now.Add(step)
	} else {
		l.next = l.next.Add(step)
	}
	l.mu.Unlock()

	if sleep <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Interval reports the configured minimum spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }
