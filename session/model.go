package session

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const tokenBytes = 32

// Session is one active login grant.
type Session struct {
	Token     string        `json:"token"`
	UserID    string        `json:"user_id"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Duration  time.Duration `json:"duration"`
}

// Valid reports whether the session has not expired.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// NearExpiry reports whether the session expires within window of now.
func (s *Session) NearExpiry(now time.Time, window time.Duration) bool {
	return s != nil && s.ExpiresAt.Sub(now) <= window
}

// NewToken returns a 32-byte random bearer token, base64url encoded.
func NewToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
