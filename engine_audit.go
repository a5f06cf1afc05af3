package credcore

import (
	"context"

	"github.com/axiohq/credcore/internal/audit"
)

// LogSecurityEvent appends a caller-defined event to the security log. The
// engine fills id, timestamp, and request metadata from ctx.
func (e *Engine) LogSecurityEvent(ctx context.Context, userID string, eventType AuditEventType, success bool, details map[string]string) error {
	event := audit.Event{
		UserID:    userID,
		Type:      eventType,
		Success:   success,
		Details:   details,
		IPAddress: ClientIP(ctx),
		UserAgent: UserAgent(ctx),
	}
	return e.audit.Append(ctx, event)
}

// UserSecurityLogs returns up to limit events for userID, newest first.
// Remote history is preferred; the cache ring is the fallback.
func (e *Engine) UserSecurityLogs(ctx context.Context, userID string, limit int) ([]AuditEvent, error) {
	return e.audit.Query(ctx, userID, limit)
}
