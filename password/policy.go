package password

import (
	"errors"
	"unicode"
)

// Policy is the password strength policy: length bounds plus at least one
// letter and one digit. MaxLength also bounds the KDF input so oversized
// requests cannot burn hashing time.
type Policy struct {
	MinLength int
	MaxLength int
}

// DefaultPolicy returns the 8-128, letter-and-digit policy.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 128}
}

var (
	// ErrTooShort is an exported policy violation returned by [Policy.Check].
	ErrTooShort = errors.New("password below minimum length")
	// ErrTooLong is an exported policy violation returned by [Policy.Check].
	ErrTooLong = errors.New("password above maximum length")
	// ErrNoLetter is an exported policy violation returned by [Policy.Check].
	ErrNoLetter = errors.New("password must contain a letter")
	// ErrNoDigit is an exported policy violation returned by [Policy.Check].
	ErrNoDigit = errors.New("password must contain a digit")
)

// Check validates pw against the policy. Violations are surfaced immediately
// to the caller and never retried.
func (p Policy) Check(pw string) error {
	min := p.MinLength
	if min <= 0 {
		min = 8
	}
	max := p.MaxLength
	if max <= 0 {
		max = 128
	}

	if len(pw) < min {
		return ErrTooShort
	}
	if len(pw) > max {
		return ErrTooLong
	}

	var hasLetter, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return ErrNoLetter
	}
	if !hasDigit {
		return ErrNoDigit
	}
	return nil
}
