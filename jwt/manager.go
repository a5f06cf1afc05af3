package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the assertion signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrInvalidKey is returned by NewManager for a missing or malformed key.
	ErrInvalidKey = errors.New("invalid signing key")

	// ErrSessionMismatch is returned by Verify when the assertion was minted
	// for a different session token.
	ErrSessionMismatch = errors.New("assertion bound to a different session")
)

// Config for the assertion manager.
type Config struct {
	// TTL is the assertion lifetime. Assertions are bootstrap material, not
	// sessions; keep this short.
	TTL time.Duration

	Method SigningMethod
	Issuer string

	// Key is the HMAC secret for HS256, or the ed25519 private key seed for
	// MethodEd25519.
	Key []byte

	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Claims carried by an assertion. SessionDigest is the hex SHA-256 of the
// opaque session token the assertion was minted from.
type Claims struct {
	SessionDigest string `json:"std"`
	jwt.RegisteredClaims
}

// Manager mints and parses assertions with a single fixed key.
type Manager struct {
	config Config
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.Method == "" {
		cfg.Method = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{config: cfg}
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.Key) < 32 {
			return nil, fmt.Errorf("%w: hs256 key shorter than 32 bytes", ErrInvalidKey)
		}
	case MethodEd25519:
		switch len(cfg.Key) {
		case ed25519.SeedSize:
			m.priv = ed25519.NewKeyFromSeed(cfg.Key)
		case ed25519.PrivateKeySize:
			m.priv = ed25519.PrivateKey(cfg.Key)
		default:
			return nil, fmt.Errorf("%w: ed25519 key must be a %d-byte seed or %d-byte private key",
				ErrInvalidKey, ed25519.SeedSize, ed25519.PrivateKeySize)
		}
		m.pub = m.priv.Public().(ed25519.PublicKey)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidKey, cfg.Method)
	}
	return m, nil
}

// Mint issues an assertion for userID, bound to sessionToken by digest.
func (m *Manager) Mint(userID, sessionToken string) (string, error) {
	now := m.config.Now()
	claims := Claims{
		SessionDigest: sessionDigest(sessionToken),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	token := jwt.NewWithClaims(m.method(), claims)
	return token.SignedString(m.signKey())
}

// Parse validates signature, expiry and issuer and returns the claims.
func (m *Manager) Parse(assertion string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(assertion, &Claims{}, func(*jwt.Token) (any, error) {
		return m.verifyKey(), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Verify parses an assertion and checks it was minted from sessionToken.
func (m *Manager) Verify(assertion, sessionToken string) (*Claims, error) {
	claims, err := m.Parse(assertion)
	if err != nil {
		return nil, err
	}
	if claims.SessionDigest != sessionDigest(sessionToken) {
		return nil, ErrSessionMismatch
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.Method == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey() any {
	if m.config.Method == MethodEd25519 {
		return m.priv
	}
	return m.config.Key
}

func (m *Manager) verifyKey() any {
	if m.config.Method == MethodEd25519 {
		return m.pub
	}
	return m.config.Key
}

func sessionDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
