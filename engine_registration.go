package credcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/challenge"
	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/mailer"
	"github.com/axiohq/credcore/internal/metrics"
)

// BeginRegistration validates the signup request, stores a TTL'd challenge
// and emails the verification code. The password is hashed before it enters
// the challenge; plaintext does not outlive this call. Delivery failure is a
// hard error and cancels the challenge.
func (e *Engine) BeginRegistration(ctx context.Context, username, email, pw string) error {
	if e.mail == nil {
		return ErrMailerRequired
	}
	taken, err := e.creds.Exists(ctx, username, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrAccountExists
	}
	digest, salt, err := e.creds.HashPassword(pw)
	if err != nil {
		return err
	}

	code, err := e.challenges.Create(ctx, challenge.KindRegistration, email, challenge.Payload{
		Username:     username,
		PasswordHash: digest,
		Salt:         salt,
	})
	if err != nil {
		return err
	}
	if err := e.sendCode(ctx, email, "Verify your email", code); err != nil {
		if cerr := e.challenges.Cancel(ctx, challenge.KindRegistration, email); cerr != nil {
			e.logger.Warn("cancel challenge after failed delivery", zap.Error(cerr))
		}
		return err
	}
	e.metrics.Inc(metrics.RegistrationBegun)
	return nil
}

// ConfirmRegistration redeems the emailed code, creates profile and
// credential, assigns the next member number, and notifies the admin address
// best-effort.
func (e *Engine) ConfirmRegistration(ctx context.Context, email, code string) (*Profile, error) {
	payload, err := e.challenges.Consume(ctx, challenge.KindRegistration, email, code)
	if err != nil {
		return nil, challengeError(err)
	}

	// The identity may have been claimed while the challenge was pending.
	taken, err := e.creds.Exists(ctx, payload.Username, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrAccountExists
	}

	axi, err := e.creds.NextAxiNumber(ctx)
	if err != nil {
		return nil, err
	}
	rec := &credstore.Record{
		UserID:       uuid.NewString(),
		Username:     strings.ToLower(strings.TrimSpace(payload.Username)),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: payload.PasswordHash,
		Salt:         payload.Salt,
		AxiNumber:    axi,
		CreatedAt:    e.now(),
	}
	if err := e.creds.Insert(ctx, rec); err != nil {
		return nil, err
	}
	profile := profileOf(rec)
	if err := e.creds.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.RegistrationConfirmed)
	e.logEvent(ctx, audit.Event{
		UserID:  rec.UserID,
		Type:    audit.EventEmailVerified,
		Success: true,
	})
	e.logEvent(ctx, audit.Event{
		UserID:  rec.UserID,
		Type:    audit.EventAccountCreated,
		Success: true,
		Details: map[string]string{"username": rec.Username},
	})

	if e.config.AdminEmail != "" && e.mail != nil {
		msg := mailer.Message{
			To:      e.config.AdminEmail,
			Subject: "New account registered",
			Text:    fmt.Sprintf("User %s (%s) registered with member number %d.", rec.Username, rec.Email, axi),
		}
		if err := e.mail.Send(ctx, msg); err != nil {
			e.logger.Warn("admin notification failed", zap.Error(err))
		}
	}
	return profile, nil
}

// BeginPasswordReset emails a reset code to an existing account. Unknown
// addresses return ErrUserNotFound; delivery failure is a hard error.
func (e *Engine) BeginPasswordReset(ctx context.Context, email string) error {
	if e.mail == nil {
		return ErrMailerRequired
	}
	p, err := e.creds.ProfileByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p == nil {
		// Fall back to the credential record; profiles can lag behind on a
		// fresh device.
		if _, ok, err := e.verifyExists(ctx, email); err != nil {
			return err
		} else if !ok {
			return ErrUserNotFound
		}
	}

	code, err := e.challenges.Create(ctx, challenge.KindPasswordReset, email, challenge.Payload{})
	if err != nil {
		return err
	}
	if err := e.sendCode(ctx, email, "Password reset code", code); err != nil {
		if cerr := e.challenges.Cancel(ctx, challenge.KindPasswordReset, email); cerr != nil {
			e.logger.Warn("cancel challenge after failed delivery", zap.Error(cerr))
		}
		return err
	}
	e.metrics.Inc(metrics.PasswordResetRequested)
	return nil
}

// ConfirmPasswordReset redeems the emailed code and sets the new password.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if _, err := e.challenges.Consume(ctx, challenge.KindPasswordReset, email, code); err != nil {
		return challengeError(err)
	}
	return e.ResetPasswordByEmail(ctx, email, newPassword)
}

func (e *Engine) sendCode(ctx context.Context, email, subject, code string) error {
	return e.mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: subject,
		Text:    "Your verification code is " + code,
		HTML:    "<p>Your verification code is <strong>" + code + "</strong></p>",
	})
}

// verifyExists reports whether a credential exists for the identifier
// without checking a password.
func (e *Engine) verifyExists(ctx context.Context, identifier string) (*Profile, bool, error) {
	taken, err := e.creds.Exists(ctx, identifier, identifier)
	if err != nil {
		return nil, false, err
	}
	return nil, taken, nil
}

func challengeError(err error) error {
	switch {
	case errors.Is(err, challenge.ErrExpired):
		return ErrVerificationExpired
	case errors.Is(err, challenge.ErrTooManyAttempts):
		return ErrVerificationAttempts
	case errors.Is(err, challenge.ErrNotFound), errors.Is(err, challenge.ErrCodeMismatch):
		return ErrVerificationInvalid
	default:
		return err
	}
}
