package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/spec-kit/lead-router/internal/repository"
)

// RetryPolicy bounds how often a unit of work is re-run after a version
// conflict or a transient storage failure.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: 10 * time.Millisecond, Cap: 250 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Cap < p.Base {
		p.Cap = max(def.Cap, p.Base)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	p = p.normalized()
	b := retry.NewExponential(p.Base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(p.Cap, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the attempts
// are exhausted or ctx is done. onRetry, when set, observes every failed attempt
// that will be retried.
func (p RetryPolicy) Do(ctx context.Context, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !repository.Retryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
}
