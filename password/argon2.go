package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minKeyLength   uint32 = 16
	saltBytes             = 16
	algorithmID           = "argon2id"
)

// Config holds the Argon2id work-factor parameters.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultConfig returns interactive-login parameters: 64 MB memory, 3 passes,
// 2 lanes, 32-byte key.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		KeyLength:   32,
	}
}

// Hasher derives and verifies password digests. A Hasher is immutable and
// safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a [Hasher]. Parameters below the
// hard floors are rejected rather than silently raised.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// GenerateSalt returns a fresh cryptographically random salt, hex encoded.
// Each credential record gets its own salt.
func GenerateSalt() (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

// Hash derives the Argon2id digest of password under the given hex salt and
// returns it PHC encoded.
func (h *Hasher) Hash(password, saltHex string) (string, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", errors.New("invalid salt encoding")
	}
	if len(salt) < saltBytes {
		return "", errors.New("salt must be at least 16 bytes")
	}

	digest := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest from the PHC parameters embedded in
// encodedDigest and compares in constant time. A wrong password is
// (false, nil); a malformed digest is an error.
func (h *Hasher) Verify(password, encodedDigest string) (bool, error) {
	parsed, err := parsePHC(encodedDigest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsRehash reports whether encodedDigest was produced with parameters
// weaker than the current configuration. Callers re-hash on the next
// successful verification.
func (h *Hasher) NeedsRehash(encodedDigest string) (bool, error) {
	parsed, err := parsePHC(encodedDigest)
	if err != nil {
		return false, err
	}
	if h.config.Memory > parsed.memory {
		return true, nil
	}
	if h.config.Time > parsed.time {
		return true, nil
	}
	if h.config.Parallelism > parsed.parallelism {
		return true, nil
	}
	if h.config.KeyLength != uint32(len(parsed.hash)) {
		return true, nil
	}
	return false, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var p parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return nil, errors.New("invalid parameter value")
		}
		switch kv[0] {
		case "m":
			p.memory = uint32(v)
		case "t":
			p.time = uint32(v)
		case "p":
			if v > 255 {
				return nil, errors.New("invalid parallelism parameter")
			}
			p.parallelism = uint8(v)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing parameters")
	}

	p.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(p.salt) < saltBytes {
		return nil, errors.New("invalid salt")
	}
	p.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(p.hash) == 0 {
		return nil, errors.New("invalid hash")
	}
	return &p, nil
}
