package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces out operations to a target rate, with optional jitter on each
// gap. Slots are reserved under a lock, so concurrent callers are released one
// interval apart rather than in bursts. A nil Limiter never blocks.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. Jitter is
// clamped to [0,1] and randomises each gap by +/- jitter*interval.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	l := &Limiter{jitter: jitter}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Wait blocks until the caller's reserved slot arrives or ctx is done. The
// first call is released immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.gap())
	l.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval reports the nominal gap between operations.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

func (l *Limiter) gap() time.Duration {
	if l.jitter == 0 {
		return l.interval
	}
	factor := rand.Float64()*2 - 1.0 // -1.0 to 1.0
	gap := l.interval + time.Duration(float64(l.interval)*l.jitter*factor)
	if gap < 0 {
		return 0
	}
	return gap
}
