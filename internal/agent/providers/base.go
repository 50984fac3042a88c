package providers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// BaseProvider holds the retry and client-side rate-limit machinery
// shared by every adapter. Embed it and call Retry around the initial
// stream creation; streaming errors after the first byte are not
// retried (the partial response has already been consumed).
type BaseProvider struct {
	name       string
	maxRetries uint64
	baseDelay  time.Duration
	limiter    *rate.Limiter
}

// NewBaseProvider creates a base with sane defaults: 3 retries, 1s base
// delay. rps <= 0 disables client-side rate limiting.
func NewBaseProvider(name string, maxRetries int, baseDelay time.Duration, rps float64) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return BaseProvider{
		name:       name,
		maxRetries: uint64(maxRetries),
		baseDelay:  baseDelay,
		limiter:    limiter,
	}
}

// Name returns the provider name.
func (b *BaseProvider) Name() string { return b.name }

// Retry runs op with exponential backoff and jitter, retrying only
// while IsRetryable holds and the retry budget lasts.
func (b *BaseProvider) Retry(ctx context.Context, op func() error) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.baseDelay
	policy.MaxInterval = 30 * time.Second

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(policy, b.maxRetries), ctx))
}
