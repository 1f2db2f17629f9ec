// Package retry repeats start-up steps whose failure is reported as
// *content.FatalInitError: a renderer that cannot launch or a store that
// cannot be reached. Any other error is returned at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mynameiseileen/nestle-chatbot/internal/content"
)

// Defaults for start-up retries.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 5 * time.Second
)

// Policy bounds how often and how far apart a step is retried.
type Policy struct {
	Attempts int
	// Backoff is the fixed wait between attempts. Negative means none.
	Backoff time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Backoff == 0 {
		p.Backoff = DefaultBackoff
	}
	return p
}

// Sleeper waits between attempts. Tests replace it to avoid real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Runner retries fatal start-up failures under a Policy.
type Runner struct {
	policy Policy
	sleep  Sleeper
	logger *zap.Logger
}

// New returns a Runner. A nil logger discards output.
func New(policy Policy, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{policy: policy.withDefaults(), sleep: Sleep, logger: logger}
}

// WithSleeper returns a copy of r that waits with s.
func (r *Runner) WithSleeper(s Sleeper) *Runner {
	cp := *r
	cp.sleep = s
	return &cp
}

// Attempts is the configured attempt ceiling.
func (r *Runner) Attempts() int {
	return r.policy.Attempts
}

// Do runs op until it succeeds, fails with a non-fatal error, or the
// attempts are used up. It reports how many attempts were made.
func Do[T any](ctx context.Context, r *Runner, step string, op func(context.Context) (T, error)) (T, int, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.policy.Backoff); err != nil {
				return zero, attempt - 1, fmt.Errorf("%s canceled: %w", step, err)
			}
		}
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("start-up step recovered", zap.String("step", step), zap.Int("attempt", attempt))
			}
			return v, attempt, nil
		}
		var fatal *content.FatalInitError
		if !errors.As(err, &fatal) {
			return zero, attempt, err
		}
		lastErr = err
		r.logger.Warn("start-up step failed",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.Attempts),
			zap.Error(err),
		)
	}
	return zero, r.policy.Attempts, fmt.Errorf("%s failed after %d attempts: %w", step, r.policy.Attempts, lastErr)
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
