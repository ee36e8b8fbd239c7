package usecase

import (
	"context"
	"errors"
	"time"

	"avatar-live-server/internal/domain"
)

// RetryPolicy bounds how a failing provider call is repeated.
type RetryPolicy struct {
	MaxRetries    int           // extra attempts after the first
	BaseDelay     time.Duration // backoff base for timeouts and transport errors
	RateLimitBase time.Duration // backoff base after a rate-limit response
	MaxDelay      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		BaseDelay:     500 * time.Millisecond,
		RateLimitBase: time.Second,
		MaxDelay:      8 * time.Second,
	}
}

// Backoff returns the wait before attempt n+1, given the error of attempt n (n>=1).
func (p RetryPolicy) Backoff(n int, err error) time.Duration {
	base := p.BaseDelay
	if errors.Is(err, domain.ErrRateLimited) && p.RateLimitBase > 0 {
		base = p.RateLimitBase
	}
	if base <= 0 {
		return 0
	}
	d := base << (n - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// sleepFunc waits d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, fails with a non-transient error, the
// policy is exhausted or ctx ends. It returns the number of calls made.
func retry(ctx context.Context, p RetryPolicy, sleep sleepFunc, fn func(ctx context.Context, attempt int) error) (int, error) {
	if sleep == nil {
		sleep = sleepCtx
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !domain.IsTransient(err) || attempt > p.MaxRetries {
			return attempt, err
		}
		if serr := sleep(ctx, p.Backoff(attempt, err)); serr != nil {
			return attempt, err
		}
	}
}
