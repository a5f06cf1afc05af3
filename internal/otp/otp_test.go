package otp

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(skew int) *Manager {
	return NewManager(Config{
		Issuer:    "credcore",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      skew,
	})
}

func TestVerifyRFCVectorsSHA1(t *testing.T) {
	m := NewManager(Config{
		Issuer:    "credcore",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      0,
	})
	secret := []byte("12345678901234567890")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyAcceptsAdjacentStepsOnly(t *testing.T) {
	m := newTestManager(1)
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111111, 0)
	baseCounter := now.Unix() / 30

	for _, offset := range []int64{-1, 0, 1} {
		code, err := hotpCode(secret, baseCounter+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode error: %v", err)
		}
		ok, counter, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode error: %v", err)
		}
		if !ok {
			t.Fatalf("expected code at offset %d to verify", offset)
		}
		if counter != baseCounter+offset {
			t.Fatalf("expected counter %d, got %d", baseCounter+offset, counter)
		}
	}

	for _, offset := range []int64{-2, 2} {
		code, err := hotpCode(secret, baseCounter+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode error: %v", err)
		}
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode error: %v", err)
		}
		if ok {
			t.Fatalf("expected code at offset %d to be rejected", offset)
		}
	}
}

func TestVerifyRejectsMalformedCodes(t *testing.T) {
	m := newTestManager(1)
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111111, 0)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode(%q) error: %v", code, err)
		}
		if ok {
			t.Fatalf("expected malformed code %q to be rejected", code)
		}
	}
}

func TestGenerateSecretRoundTrip(t *testing.T) {
	m := newTestManager(1)
	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret error: %v", err)
	}
	if len(raw) != 20 {
		t.Fatalf("expected 20 bytes of secret, got %d", len(raw))
	}
	decoded, err := DecodeSecret(encoded)
	if err != nil {
		t.Fatalf("DecodeSecret error: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatal("decoded secret does not match generated secret")
	}
}

func TestProvisionURI(t *testing.T) {
	m := newTestManager(1)
	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@x.com")
	if !strings.HasPrefix(uri, "otpauth://totp/credcore:alice@x.com?") {
		t.Fatalf("unexpected uri: %s", uri)
	}
	if !strings.Contains(uri, "secret=JBSWY3DPEHPK3PXP") {
		t.Fatalf("uri missing secret: %s", uri)
	}
	if !strings.Contains(uri, "period=30") || !strings.Contains(uri, "digits=6") {
		t.Fatalf("uri missing parameters: %s", uri)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	m := NewManager(Config{BackupCodeCount: 10, BackupCodeLength: 10})
	codes, err := m.GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes error: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	seen := make(map[string]bool)
	for _, code := range codes {
		if len(code) != 10 {
			t.Fatalf("expected 10-character code, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %q contains %q outside alphabet", code, r)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[code] = true
	}
}

func TestHashBackupCodeNormalizes(t *testing.T) {
	a := HashBackupCode("abcd2345ef")
	b := HashBackupCode("  ABCD2345EF ")
	if a != b {
		t.Fatal("expected hash to normalize case and whitespace")
	}
	c := HashBackupCode("ABCD2345EG")
	if a == c {
		t.Fatal("expected different codes to hash differently")
	}
}
