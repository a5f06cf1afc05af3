package credcore

import (
	"context"
	"time"
)

// IsRateLimited reports whether identifier is currently blocked by failed
// attempts inside the sliding window.
func (e *Engine) IsRateLimited(ctx context.Context, identifier string) (bool, error) {
	return e.limiter.IsLimited(ctx, identifier)
}

// RecordFailedAttempt adds one failure to identifier's window.
func (e *Engine) RecordFailedAttempt(ctx context.Context, identifier string) error {
	return e.limiter.RecordFailure(ctx, identifier)
}

// RecordSuccessfulAttempt clears identifier's window after a successful
// authentication.
func (e *Engine) RecordSuccessfulAttempt(ctx context.Context, identifier string) error {
	return e.limiter.RecordSuccess(ctx, identifier)
}

// ResetRateLimit clears identifier's window unconditionally.
func (e *Engine) ResetRateLimit(ctx context.Context, identifier string) error {
	return e.limiter.Reset(ctx, identifier)
}

// RateLimitRetryAfter reports how long until the oldest in-window failure
// ages out. Zero when not limited.
func (e *Engine) RateLimitRetryAfter(ctx context.Context, identifier string) (time.Duration, error) {
	return e.limiter.RetryAfter(ctx, identifier)
}
