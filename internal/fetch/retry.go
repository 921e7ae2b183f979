package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LinearRetryPolicy retries transient failures, waiting baseDelay*attempt
// between attempts.
type LinearRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewLinearRetryPolicy builds a policy allowing maxAttempts total attempts.
func NewLinearRetryPolicy(maxAttempts int, baseDelay time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts reports the total number of attempts allowed.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	return attempt < p.maxAttempts && transient(err)
}

// transient reports whether err is worth another attempt. Transport errors,
// timeouts, 429 and 5xx are; other statuses, decode failures and cancellation
// are not.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDecode) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	return true
}

// Backoff returns the wait before the attempt following attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay * time.Duration(attempt)
}

// Pause sleeps for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
