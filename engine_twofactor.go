package credcore

import (
	"context"
	"errors"

	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/twofactor"
)

// SetupTwoFactor generates enrollment material: secret, otpauth URI and
// draft backup codes. Nothing is persisted until EnableTwoFactor confirms.
func (e *Engine) SetupTwoFactor(ctx context.Context, username string) (*TwoFactorSetup, error) {
	setup, err := e.twofactor.Setup(ctx, username)
	if err != nil {
		if errors.Is(err, twofactor.ErrAlreadyEnabled) {
			return nil, ErrTwoFactorAlreadyEnabled
		}
		return nil, err
	}
	return setup, nil
}

// EnableTwoFactor confirms enrollment with a code against the draft secret
// and persists the record as enabled.
func (e *Engine) EnableTwoFactor(ctx context.Context, username, secret, code string, backupCodes []string) error {
	ok, err := e.twofactor.Enable(ctx, username, secret, code, backupCodes)
	if err != nil {
		if errors.Is(err, twofactor.ErrAlreadyEnabled) {
			return ErrTwoFactorAlreadyEnabled
		}
		return err
	}
	if !ok {
		return ErrTwoFactorInvalid
	}
	e.logEvent(ctx, audit.Event{
		Type:    audit.EventTwoFactorEnabled,
		Success: true,
		Details: map[string]string{"username": username},
	})
	return nil
}

// DisableTwoFactor removes the second factor after a valid TOTP or backup
// code.
func (e *Engine) DisableTwoFactor(ctx context.Context, username, code string) error {
	ok, err := e.twofactor.Disable(ctx, username, code)
	if err != nil {
		if errors.Is(err, twofactor.ErrNotEnabled) {
			return ErrTwoFactorNotEnabled
		}
		return err
	}
	if !ok {
		return ErrTwoFactorInvalid
	}
	e.logEvent(ctx, audit.Event{
		Type:    audit.EventTwoFactorDisabled,
		Success: true,
		Details: map[string]string{"username": username},
	})
	return nil
}

// VerifyTwoFactorLogin gates a login attempt. Users without 2FA pass
// unconditionally; a matched backup code is consumed.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, username, code string) (bool, error) {
	ok, err := e.twofactor.VerifyLogin(ctx, username, code)
	if err != nil {
		return false, err
	}
	if ok {
		e.metrics.Inc(metrics.TwoFactorSuccess)
	} else {
		e.metrics.Inc(metrics.TwoFactorFailure)
	}
	return ok, nil
}

// TwoFactorEnabled reports whether username has an active second factor.
func (e *Engine) TwoFactorEnabled(ctx context.Context, username string) (bool, error) {
	return e.twofactor.Enabled(ctx, username)
}

// RegenerateBackupCodes replaces the backup code set after a valid TOTP
// code. Backup codes are not accepted here.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, username, code string) ([]string, error) {
	codes, err := e.twofactor.RegenerateBackupCodes(ctx, username, code)
	if err != nil {
		if errors.Is(err, twofactor.ErrNotEnabled) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, err
	}
	if codes == nil {
		return nil, ErrTwoFactorInvalid
	}
	return codes, nil
}
