package credcore

import (
	"errors"
	"fmt"
	"time"
)

// PasswordConfig tunes the argon2id hasher and the plaintext policy.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLength   uint32

	MinLength int
	MaxLength int
}

// RateLimitConfig tunes the sliding-window login limiter.
type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// SessionConfig tunes session lifetime and the refresh window.
type SessionConfig struct {
	Duration      time.Duration
	RefreshWindow time.Duration
}

// TOTPConfig tunes the second-factor code generator.
type TOTPConfig struct {
	Issuer           string
	Digits           int
	Period           int
	Algorithm        string // SHA1, SHA256 or SHA512
	Skew             int
	BackupCodeCount  int
	BackupCodeLength int
}

// ChallengeConfig tunes email verification codes.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	CodeDigits  int
}

// SyncConfig tunes the cache→remote reconciliation loop.
type SyncConfig struct {
	Interval      time.Duration
	FocusDebounce time.Duration
	RetryDelay    time.Duration
	RetryAttempts uint64
}

// AuditConfig tunes the audit log and its async dispatcher.
type AuditConfig struct {
	Buffer    int // dispatcher channel capacity
	MaxCached int // cache ring capacity
}

// AssertionConfig tunes cross-subdomain auth assertions. Minting is disabled
// while Key is empty.
type AssertionConfig struct {
	Key    []byte
	Method string // hs256 or ed25519
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
}

// Config is the full engine configuration tree. Zero values fall back to the
// defaults at Build.
type Config struct {
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	TOTP      TOTPConfig
	Challenge ChallengeConfig
	Sync      SyncConfig
	Audit     AuditConfig
	Assertion AssertionConfig

	// RemoteTimeout bounds individual remote-store calls.
	RemoteTimeout time.Duration

	// AdminEmail receives best-effort new-account notifications when set.
	AdminEmail string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   128,
		},
		RateLimit: RateLimitConfig{
			Window:      15 * time.Minute,
			MaxAttempts: 5,
		},
		Session: SessionConfig{
			Duration:      7 * 24 * time.Hour,
			RefreshWindow: 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:           "credcore",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Challenge: ChallengeConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			CodeDigits:  6,
		},
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			FocusDebounce: 60 * time.Second,
			RetryDelay:    30 * time.Second,
			RetryAttempts: 5,
		},
		Audit: AuditConfig{
			Buffer:    256,
			MaxCached: 500,
		},
		Assertion: AssertionConfig{
			Method: "hs256",
			TTL:    time.Minute,
		},
		RemoteTimeout: 8 * time.Second,
	}
}

// Validate rejects configurations that would silently weaken security.
func (c Config) Validate() error {
	if c.Password.Memory > 0 && c.Password.Memory < 8*1024 {
		return errors.New("config: argon2 memory below 8 MiB")
	}
	if c.Password.MinLength < 0 || (c.Password.MaxLength > 0 && c.Password.MinLength > c.Password.MaxLength) {
		return errors.New("config: password length bounds inverted")
	}
	if c.RateLimit.MaxAttempts < 0 {
		return errors.New("config: negative rate limit attempts")
	}
	if c.Session.RefreshWindow > 0 && c.Session.Duration > 0 && c.Session.RefreshWindow >= c.Session.Duration {
		return errors.New("config: refresh window must be shorter than session duration")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("config: unsupported totp algorithm %q", c.TOTP.Algorithm)
	}
	if c.TOTP.Digits != 0 && (c.TOTP.Digits < 6 || c.TOTP.Digits > 10) {
		return fmt.Errorf("config: totp digits %d outside 6..10", c.TOTP.Digits)
	}
	if c.Assertion.Key != nil && c.Assertion.Method == "hs256" && len(c.Assertion.Key) < 32 {
		return errors.New("config: assertion hs256 key shorter than 32 bytes")
	}
	return nil
}
