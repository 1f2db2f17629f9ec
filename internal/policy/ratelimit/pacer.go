package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces sequential operations at least one interval apart. The first
// Wait returns at once.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer returns a Pacer for interval. Zero or negative disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1), interval: interval}
}

// Wait blocks until the next operation may start or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait pacer: %w", err)
	}
	return nil
}

// Interval reports the configured spacing; zero when disabled.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
