package credcore

import "errors"

var (
	// ErrInvalidCredentials is returned for a wrong identifier or password.
	// Callers get the same error for both, by login-oracle convention.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited is returned when an identifier has exceeded its failed
	// attempt budget inside the sliding window.
	ErrRateLimited = errors.New("too many failed attempts")

	// ErrTwoFactorRequired is returned by Login when the account has 2FA
	// enabled and no (or a wrong) code was supplied.
	ErrTwoFactorRequired = errors.New("two-factor code required")

	// ErrTwoFactorInvalid is returned for a wrong TOTP or backup code on
	// explicit two-factor operations.
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")

	// ErrTwoFactorNotEnabled is returned by operations that require an
	// enabled second factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")

	// ErrTwoFactorAlreadyEnabled is returned by SetupTwoFactor while a second
	// factor is active; it must be disabled before re-enrolling.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")

	// ErrAccountExists is returned when the username or email is taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrUserNotFound is returned when an operation names an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrVerificationInvalid covers a wrong or missing email verification
	// code while attempts remain.
	ErrVerificationInvalid = errors.New("verification code invalid")

	// ErrVerificationExpired is returned once a challenge outlives its TTL.
	ErrVerificationExpired = errors.New("verification code expired")

	// ErrVerificationAttempts is returned when a challenge's guess budget is
	// spent; the flow must be restarted.
	ErrVerificationAttempts = errors.New("verification attempts exceeded")

	// ErrMailerRequired is returned by flows that must deliver email when the
	// engine was built without a mailer.
	ErrMailerRequired = errors.New("mailer required")

	// ErrSessionInvalid is returned when a session is absent or expired.
	ErrSessionInvalid = errors.New("session invalid")
)
