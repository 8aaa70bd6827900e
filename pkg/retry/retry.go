// Package retry runs idempotent operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts is used when the configured attempt count is unset
const DefaultMaxAttempts = 5

// Policy defines retry behavior
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// ShouldRetry classifies errors. A nil predicate retries every error
	// except context cancellation.
	ShouldRetry func(error) bool
	// OnRetry is called before each backoff wait
	OnRetry func(attempt int, err error)

	Logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a policy with exponential backoff
func NewPolicy(maxAttempts int, shouldRetry func(error) bool) *Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Second,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
		ShouldRetry:     shouldRetry,
		Logger:          zap.NewNop(),
	}
}

// Do runs fn until it succeeds, returns a non-retryable error or runs out of
// attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return zero, err
		}

		// Don't wait after the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := p.calculateDelay(attempt)
		if p.Logger != nil {
			p.Logger.Warn("operation failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		if err := p.wait(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func (p *Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
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

// calculateDelay calculates the delay for a given attempt
func (p *Policy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay))
	}

	return time.Duration(delay)
}

// WithLogger returns a copy logging retries to logger
func (p *Policy) WithLogger(logger *zap.Logger) *Policy {
	c := *p
	c.Logger = logger
	return &c
}

// WithoutRetries returns a copy making a single attempt
func (p *Policy) WithoutRetries() *Policy {
	c := *p
	c.MaxAttempts = 1
	return &c
}
