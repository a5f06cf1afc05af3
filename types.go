package credcore

import (
	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/mailer"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/storage"
	"github.com/axiohq/credcore/internal/twofactor"
	"github.com/axiohq/credcore/session"
)

// Public aliases for the engine's wire types, so embedders depend on the root
// package only.

// Profile is a user's public identity record.
type Profile = credstore.Profile

// Session is an issued session with its opaque token.
type Session = session.Session

// AuditEvent is one append-only security log record.
type AuditEvent = audit.Event

// AuditEventType enumerates audit event kinds.
type AuditEventType = audit.EventType

// AuditSink receives audit events after the engine's own writes.
type AuditSink = audit.Sink

// TwoFactorSetup is the enrollment material returned by SetupTwoFactor.
type TwoFactorSetup = twofactor.Setup

// Mailer delivers transactional email for registration and password reset.
type Mailer = mailer.Mailer

// MailMessage is one outbound email.
type MailMessage = mailer.Message

// Cache is the local durable key-value substrate.
type Cache = storage.Cache

// Remote is the hosted durable store substrate.
type Remote = storage.Remote

// MetricID names one engine counter.
type MetricID = metrics.ID

// Audit event type re-exports.
const (
	EventLoginSuccess          = audit.EventLoginSuccess
	EventLoginFailure          = audit.EventLoginFailure
	EventLogout                = audit.EventLogout
	EventPasswordChange        = audit.EventPasswordChange
	EventPasswordReset         = audit.EventPasswordReset
	EventEmailVerified         = audit.EventEmailVerified
	EventTwoFactorEnabled      = audit.EventTwoFactorEnabled
	EventTwoFactorDisabled     = audit.EventTwoFactorDisabled
	EventTwoFactorVerification = audit.EventTwoFactorVerification
	EventAccountCreated        = audit.EventAccountCreated
	EventProfileUpdated        = audit.EventProfileUpdated
	EventRateLimitExceeded     = audit.EventRateLimitExceeded
)

// LoginResult is the outcome of the composite Login flow.
type LoginResult struct {
	Profile *Profile
	Session *Session
}
