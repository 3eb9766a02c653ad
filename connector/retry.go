package connector

import (
	"context"
	"time"
)

const defaultRetryDelay = time.Second

// withRetry calls fn until it succeeds, doubling the delay between attempts
// up to MaxDelay. A nil config means a single attempt.
func withRetry[T any](ctx context.Context, cfg *RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	if cfg == nil || cfg.MaxRetries <= 0 {
		return fn(ctx)
	}

	var (
		res T
		err error
	)
	delay := cfg.BaseDelay
	if delay == 0 {
		delay = defaultRetryDelay
	}

	for i := 0; i < cfg.MaxRetries; i++ {
		res, err = fn(ctx)
		if err == nil {
			return res, nil
		}
		if i == cfg.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if delay > cfg.MaxDelay && cfg.MaxDelay > 0 {
				delay = cfg.MaxDelay
			}
		}
	}
	return res, err
}
