package credcore

import (
	"context"
	"errors"

	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/metrics"
)

// RegisterUser creates an account directly, without the email verification
// round-trip. Intended for pre-verified imports and tests; interactive signup
// goes through BeginRegistration.
func (e *Engine) RegisterUser(ctx context.Context, username, email, pw string) (*Profile, error) {
	axi, err := e.creds.NextAxiNumber(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := e.creds.Create(ctx, username, email, pw, axi)
	if err != nil {
		if errors.Is(err, credstore.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	profile := profileOf(rec)
	if err := e.creds.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	e.metrics.Inc(metrics.RegistrationConfirmed)
	e.logEvent(ctx, audit.Event{
		UserID:  rec.UserID,
		Type:    audit.EventAccountCreated,
		Success: true,
	})
	return profile, nil
}

// VerifyUserCredentials checks identifier (username or email) and password.
// A false result covers both unknown identifiers and wrong passwords.
func (e *Engine) VerifyUserCredentials(ctx context.Context, identifier, pw string) (*Profile, bool, error) {
	rec, ok, err := e.creds.Verify(ctx, identifier, pw)
	if err != nil || !ok {
		return nil, false, err
	}
	return profileOf(rec), true, nil
}

// UpdateUserPassword re-hashes and stores a new password after validating it
// against the policy.
func (e *Engine) UpdateUserPassword(ctx context.Context, username, newPassword string) error {
	if err := e.creds.UpdatePassword(ctx, username, newPassword); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	e.metrics.Inc(metrics.PasswordChanged)
	e.logEvent(ctx, audit.Event{
		Type:    audit.EventPasswordChange,
		Success: true,
		Details: map[string]string{"username": username},
	})
	return nil
}

// ResetPasswordByEmail force-sets the password for the account owning email,
// synthesizing the credential from the profile when only the profile is
// known locally. No verification code is involved; interactive reset goes
// through BeginPasswordReset.
func (e *Engine) ResetPasswordByEmail(ctx context.Context, email, newPassword string) error {
	if err := e.creds.ResetByEmail(ctx, email, newPassword); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	e.metrics.Inc(metrics.PasswordResetConfirmed)
	e.logEvent(ctx, audit.Event{
		Type:    audit.EventPasswordReset,
		Success: true,
		Details: map[string]string{"email": email},
	})
	return nil
}

// UserProfile resolves a profile by email, cache first with remote fallback.
func (e *Engine) UserProfile(ctx context.Context, email string) (*Profile, error) {
	p, err := e.creds.ProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUserNotFound
	}
	return p, nil
}
