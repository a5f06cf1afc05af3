package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

// Config holds TOTP tuning: digits, period, drift skew and the backup code
// shape are all fields rather than constants.
type Config struct {
	Issuer           string
	Digits           int
	Period           int
	Algorithm        string // "SHA1" (default, per RFC 6238), "SHA256", "SHA512"
	Skew             int    // accepted steps either side of now
	BackupCodeCount  int
	BackupCodeLength int
}

// Manager generates secrets, provisioning URIs, codes, and backup codes.
type Manager struct {
	config Config
}

// NewManager fills zero config fields with RFC defaults and returns a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if cfg.BackupCodeLength <= 0 {
		cfg.BackupCodeLength = 10
	}
	return &Manager{config: cfg}
}

// GenerateSecret returns 20 bytes of entropy and its base32 (no padding)
// encoding.
func (m *Manager) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// DecodeSecret decodes a base32 secret as produced by [Manager.GenerateSecret].
func DecodeSecret(secretBase32 string) ([]byte, error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
}

// ProvisionURI builds the otpauth:// URI encoded into setup QR codes.
func (m *Manager) ProvisionURI(secretBase32, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", strings.ToUpper(m.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code returns the code for the time step containing now.
func (m *Manager) Code(secret []byte, now time.Time) (string, error) {
	return hotpCode(secret, now.Unix()/int64(m.config.Period), m.config.Digits, m.config.Algorithm)
}

// VerifyCode checks code against steps now±skew in constant time per
// candidate. On match it returns the matched counter so callers can enforce
// replay protection.
func (m *Manager) VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	baseCounter := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// backupCodeAlphabet omits 0/O/1/I to keep codes transcribable.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateBackupCodes returns the configured number of single-use recovery
// codes. Plaintext codes are shown once; only their hashes are persisted.
func (m *Manager) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, m.config.BackupCodeCount)
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < m.config.BackupCodeCount; i++ {
		var b strings.Builder
		b.Grow(m.config.BackupCodeLength)
		for j := 0; j < m.config.BackupCodeLength; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// HashBackupCode normalizes and hashes a backup code for storage/lookup.
func HashBackupCode(code string) [32]byte {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	return sha256.Sum256([]byte(normalized))
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
