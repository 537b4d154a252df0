package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/types"
)

// RetryPolicy configures exponential-backoff retry behavior for LLM gateway
// calls: how many attempts, how the delay grows between them, and which
// errors are worth retrying at all.
type RetryPolicy struct {
	MaxRetries      int                                               // 0 disables retry entirely
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64 // exponential growth factor applied per attempt
	Jitter          bool    // randomize delay by +/-25% to avoid thundering-herd retries
	RetryableErrors []error // empty means every error is retryable
	OnRetry         func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy Gateway uses when none is supplied:
// two retries (three attempts in all), one-second initial backoff doubling
// up to 30s, with jitter.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer executes a function, retrying transient failures per its policy.
type Retryer interface {
	Do(ctx context.Context, fn func() error) error
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffRetryer is the exponential-backoff Retryer implementation Gateway
// wraps every provider call in.
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer builds a Retryer from policy, filling in sane defaults
// for any zero-valued field.
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &backoffRetryer{
		policy: policy,
		logger: logger,
	}
}

// Do implements Retryer.
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult implements Retryer: exponential backoff, optional jitter,
// and an error-retryability check before spending another attempt.
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	var result any

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying LLM gateway call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, lastErr = fn()

		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("error is not retryable", zap.Error(lastErr))
			return nil, lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)

	return nil, fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

// calculateDelay applies exponential backoff (InitialDelay * Multiplier^(attempt-1)),
// caps it at MaxDelay, and jitters it by +/-25% when Jitter is set.
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}

	return time.Duration(delay)
}

// isRetryable decides whether lastErr is worth another attempt. When the
// policy names an explicit RetryableErrors allow-list, membership in that
// list (via errors.Is) decides it. Otherwise, a classified *types.Error
// defers to its own Retryable field — so a provider returning
// types.ErrRateLimit or types.ErrUpstreamTimeout is retried automatically
// without every caller needing to populate RetryableErrors — and any other
// error is retried by default, matching the provider-call use case this
// retryer exists for.
func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if len(r.policy.RetryableErrors) > 0 {
		for _, retryableErr := range r.policy.RetryableErrors {
			if errors.Is(err, retryableErr) {
				return true
			}
		}
		return false
	}

	var classified *types.Error
	if errors.As(err, &classified) {
		return classified.Retryable
	}

	return true
}

// RetryableError marks an arbitrary error as retryable, for callers that
// need WrapRetryable/IsRetryableError instead of the classified *types.Error
// path isRetryable prefers.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryableError reports whether err was wrapped by WrapRetryable. This is
// distinct from types.IsRetryable, which inspects a *types.Error's
// Retryable field directly.
func IsRetryableError(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// IsRetryable is an alias for IsRetryableError.
//
// Deprecated: use IsRetryableError to avoid confusion with types.IsRetryable.
var IsRetryable = IsRetryableError

// WrapRetryable marks err as retryable for IsRetryableError/IsRetryable callers.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}
