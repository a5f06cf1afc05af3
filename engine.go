package credcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/challenge"
	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/mailer"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/otp"
	"github.com/axiohq/credcore/internal/rate"
	"github.com/axiohq/credcore/internal/storage"
	"github.com/axiohq/credcore/internal/syncer"
	"github.com/axiohq/credcore/internal/twofactor"
	"github.com/axiohq/credcore/jwt"
	"github.com/axiohq/credcore/session"
)

// Engine is the credential and session security engine. Safe for concurrent
// use after Build; terminated by Close.
type Engine struct {
	config  Config
	cache   storage.Cache
	remote  storage.Remote
	mail    mailer.Mailer
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	creds      *credstore.Store
	limiter    *rate.Limiter
	sessions   *session.Store
	otp        *otp.Manager
	twofactor  *twofactor.Manager
	challenges *challenge.Store
	audit      *audit.Log
	syncer     *syncer.Syncer
	assertions *jwt.Manager
}

// Close stops the sync loop (with one flush cycle) and drains the audit
// dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.config.RemoteTimeout)
	defer cancel()
	e.syncer.Stop(ctx)
	e.audit.Close()
}

// Login runs the full authentication pipeline: rate limiter, credential
// check, optional two-factor gate, session issue, audit, and a background
// sync trigger. twoFactorCode may be empty for accounts without 2FA.
func (e *Engine) Login(ctx context.Context, identifier, pw, twoFactorCode string) (*LoginResult, error) {
	limited, err := e.limiter.IsLimited(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if limited {
		e.metrics.Inc(metrics.LoginRateLimited)
		e.logEvent(ctx, audit.Event{
			Type:    audit.EventRateLimitExceeded,
			Details: map[string]string{"identifier": identifier},
		})
		return nil, ErrRateLimited
	}

	rec, ok, err := e.creds.Verify(ctx, identifier, pw)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.Inc(metrics.LoginFailure)
		if err := e.limiter.RecordFailure(ctx, identifier); err != nil {
			e.logger.Warn("record failed attempt", zap.Error(err))
		}
		e.logEvent(ctx, audit.Event{
			Type:    audit.EventLoginFailure,
			Details: map[string]string{"identifier": identifier},
		})
		return nil, ErrInvalidCredentials
	}

	passed, err := e.twofactor.VerifyLogin(ctx, rec.Username, twoFactorCode)
	if err != nil {
		return nil, err
	}
	if !passed {
		e.metrics.Inc(metrics.TwoFactorFailure)
		if err := e.limiter.RecordFailure(ctx, identifier); err != nil {
			e.logger.Warn("record failed attempt", zap.Error(err))
		}
		e.logEvent(ctx, audit.Event{
			UserID:  rec.UserID,
			Type:    audit.EventTwoFactorVerification,
			Details: map[string]string{"identifier": identifier},
		})
		if twoFactorCode == "" {
			return nil, ErrTwoFactorRequired
		}
		return nil, ErrTwoFactorInvalid
	}

	if err := e.limiter.RecordSuccess(ctx, identifier); err != nil {
		e.logger.Warn("reset rate window", zap.Error(err))
	}
	sess, err := e.sessions.Create(ctx, rec.UserID, e.config.Session.Duration)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.LoginSuccess)
	e.metrics.Inc(metrics.SessionCreated)
	e.logEvent(ctx, audit.Event{
		UserID:  rec.UserID,
		Type:    audit.EventLoginSuccess,
		Success: true,
	})
	e.syncer.TriggerLogin()

	return &LoginResult{Profile: profileOf(rec), Session: sess}, nil
}

// Logout invalidates the user's session and records the event.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if err := e.sessions.Invalidate(ctx, userID); err != nil {
		return err
	}
	e.metrics.Inc(metrics.SessionInvalidated)
	e.logEvent(ctx, audit.Event{
		UserID:  userID,
		Type:    audit.EventLogout,
		Success: true,
	})
	return nil
}

// CrossDomainAssertion mints a short-lived signed assertion bound to the
// user's current session, for bootstrapping auth on sibling subdomains.
func (e *Engine) CrossDomainAssertion(ctx context.Context, userID string) (string, error) {
	if e.assertions == nil {
		return "", jwt.ErrInvalidKey
	}
	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if sess == nil || !sess.Valid(e.now()) {
		return "", ErrSessionInvalid
	}
	return e.assertions.Mint(userID, sess.Token)
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
// Feeds metrics/export exporters.
func (e *Engine) MetricsSnapshot() map[metrics.ID]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports events dropped by dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// logEvent appends an audit event enriched with request metadata from ctx.
// Audit failures are logged, never surfaced.
func (e *Engine) logEvent(ctx context.Context, event audit.Event) {
	event.IPAddress = ClientIP(ctx)
	event.UserAgent = UserAgent(ctx)
	if err := e.audit.Append(ctx, event); err != nil {
		e.logger.Warn("audit append failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func profileOf(rec *credstore.Record) *Profile {
	return &Profile{
		UserID:    rec.UserID,
		Username:  rec.Username,
		Email:     rec.Email,
		AxiNumber: rec.AxiNumber,
		CreatedAt: rec.CreatedAt,
	}
}
