package credcore

import (
	"context"
	"time"

	"github.com/axiohq/credcore/internal/metrics"
)

// CreateSession issues a new session for userID, replacing any existing one.
// A zero duration uses the configured default.
func (e *Engine) CreateSession(ctx context.Context, userID string, duration time.Duration) (*Session, error) {
	if duration == 0 {
		duration = e.config.Session.Duration
	}
	sess, err := e.sessions.Create(ctx, userID, duration)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(metrics.SessionCreated)
	return sess, nil
}

// ValidateSession reports whether userID holds a live session. Expired
// sessions are purged; sessions close to expiry are refreshed in the
// background.
func (e *Engine) ValidateSession(ctx context.Context, userID string) (bool, error) {
	return e.sessions.Validate(ctx, userID)
}

// InvalidateSession removes the user's session from cache and remote store.
func (e *Engine) InvalidateSession(ctx context.Context, userID string) error {
	if err := e.sessions.Invalidate(ctx, userID); err != nil {
		return err
	}
	e.metrics.Inc(metrics.SessionInvalidated)
	return nil
}

// RefreshSession extends the user's session by its original duration,
// issuing a fresh one when absent.
func (e *Engine) RefreshSession(ctx context.Context, userID string) (*Session, error) {
	sess, err := e.sessions.Refresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(metrics.SessionRefreshed)
	return sess, nil
}

// SessionOf returns the user's current session record, nil when absent.
func (e *Engine) SessionOf(ctx context.Context, userID string) (*Session, error) {
	return e.sessions.Get(ctx, userID)
}
