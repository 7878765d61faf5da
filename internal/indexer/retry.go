package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultRetryDelay = 100 * time.Millisecond

// RetryPolicy bounds how often a failing RPC call is repeated. The delay
// doubles after each attempt up to MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) next(delay time.Duration) time.Duration {
	delay *= 2
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// retry calls fn until it succeeds, the policy runs out, or ctx ends.
// Cancellation errors from fn are returned at once. Each failed attempt is
// logged at warn level under what.
func retry[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, what string, fn func(context.Context) (T, error)) (T, error) {
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt >= policy.MaxRetries {
			return value, err
		}
		logger.Warn(what+" failed", zap.Error(err), zap.Int("attempt", attempt+1), zap.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = policy.next(delay)
	}
}
