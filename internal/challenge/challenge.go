package challenge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axiohq/credcore/internal/storage"
)

// Challenge kinds. Keys are namespaced per kind so an in-flight registration
// cannot be redeemed as a password reset.
const (
	KindRegistration  = "registration"
	KindPasswordReset = "password_reset"
)

var (
	// ErrNotFound is returned when no challenge is pending for the address.
	ErrNotFound = errors.New("no pending challenge")

	// ErrExpired is returned when the challenge outlived its TTL. The record
	// is removed on first observation.
	ErrExpired = errors.New("challenge expired")

	// ErrTooManyAttempts is returned once the attempt budget is spent; the
	// challenge is burned and a new one must be issued.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrCodeMismatch is returned for a wrong code while attempts remain.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// Payload is the caller state carried across the email round-trip.
type Payload struct {
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Salt         string `json:"salt,omitempty"`
}

type record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Payload   Payload   `json:"payload"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Config bounds a challenge's lifetime and guess budget.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	CodeDigits  int
}

func DefaultConfig() Config {
	return Config{
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
		CodeDigits:  6,
	}
}

// Store issues challenges and redeems codes against them.
type Store struct {
	cache  storage.Cache
	config Config
	now    func() time.Time
}

func New(cache storage.Cache, cfg Config, now func() time.Time) *Store {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CodeDigits <= 0 {
		cfg.CodeDigits = def.CodeDigits
	}
	if now == nil {
		now = time.Now
	}
	return &Store{cache: cache, config: cfg, now: now}
}

// Create issues a fresh challenge for the address, replacing any pending one,
// and returns the code to be delivered out of band.
func (s *Store) Create(ctx context.Context, kind, email string, payload Payload) (string, error) {
	code, err := numericCode(s.config.CodeDigits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	rec := record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Email:     normalize(email),
		Code:      code,
		Payload:   payload,
		ExpiresAt: s.now().Add(s.config.TTL),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.cache.Set(ctx, key(kind, rec.Email), raw); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return code, nil
}

// Consume redeems a code. On success the challenge is removed and its payload
// returned. A wrong code spends one attempt; expiry and attempt exhaustion
// burn the challenge entirely.
func (s *Store) Consume(ctx context.Context, kind, email, code string) (*Payload, error) {
	k := key(kind, normalize(email))
	raw, found, err := s.cache.Get(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("read challenge: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		_ = s.cache.Remove(ctx, k)
		return nil, ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		rec.Attempts++
		if rec.Attempts >= s.config.MaxAttempts {
			_ = s.cache.Remove(ctx, k)
			return nil, ErrTooManyAttempts
		}
		if updated, err := json.Marshal(rec); err == nil {
			_ = s.cache.Set(ctx, k, updated)
		}
		return nil, ErrCodeMismatch
	}
	if err := s.cache.Remove(ctx, k); err != nil {
		return nil, fmt.Errorf("remove challenge: %w", err)
	}
	payload := rec.Payload
	return &payload, nil
}

// Cancel drops any pending challenge for the address.
func (s *Store) Cancel(ctx context.Context, kind, email string) error {
	return s.cache.Remove(ctx, key(kind, normalize(email)))
}

func key(kind, email string) string {
	return "challenge:" + kind + ":" + email
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// numericCode draws a zero-padded decimal code with crypto/rand.
func numericCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
