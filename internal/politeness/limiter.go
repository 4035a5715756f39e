// Package politeness enforces a minimum delay between consecutive fetches to
// the same origin, shared across all jobs in the process.
package politeness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one rate.Limiter per origin. A delay of zero disables
// waiting entirely.
type Limiter struct {
	delay    time.Duration
	limiters sync.Map
}

// New builds a Limiter that spaces same-origin fetches at least delay apart.
func New(delay time.Duration) *Limiter {
	return &Limiter{delay: delay}
}

// Wait blocks until the origin's budget allows another fetch or the context
// ends. It returns the time spent waiting.
func (l *Limiter) Wait(ctx context.Context, origin string) (time.Duration, error) {
	if l.delay <= 0 {
		return 0, nil
	}
	val, _ := l.limiters.LoadOrStore(origin, rate.NewLimiter(rate.Every(l.delay), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return 0, fmt.Errorf("unexpected limiter type %T", val)
	}
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return time.Since(start), fmt.Errorf("wait origin budget: %w", err)
	}
	return time.Since(start), nil
}
