package twofactor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/otp"
	"github.com/axiohq/credcore/internal/storage"
)

var (
	// ErrAlreadyEnabled is returned by Setup when the user has an active
	// second factor; it must be disabled before re-enrolling.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")

	// ErrNotEnabled is returned by operations that require an active record.
	ErrNotEnabled = errors.New("two-factor not enabled")
)

const cachePrefix = "2fa:"

// Setup is the enrollment material returned to the caller for confirmation.
// None of it is persisted until Enable succeeds.
type Setup struct {
	Secret       string   `json:"secret"`
	ProvisionURI string   `json:"provisionUri"`
	BackupCodes  []string `json:"backupCodes"`
}

// record is the persisted per-user state. Backup codes are kept as hex
// SHA-256 digests; LastCounter rejects replay of the most recent TOTP step.
type record struct {
	Username    string   `json:"username"`
	Secret      string   `json:"secret"`
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backupCodes"`
	LastCounter int64    `json:"lastCounter"`
}

// Manager owns Two-Factor Records, dual-writing them to the cache and the
// user_credentials columns of the remote store.
type Manager struct {
	cache  storage.Cache
	remote storage.Remote
	otp    *otp.Manager
	logger *zap.Logger
	now    func() time.Time
}

func New(cache storage.Cache, remote storage.Remote, om *otp.Manager, logger *zap.Logger, now func() time.Time) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{cache: cache, remote: remote, otp: om, logger: logger, now: now}
}

// Setup generates a fresh secret, provisioning URI and draft backup codes.
// The state stays disabled; the caller confirms via Enable.
func (m *Manager) Setup(ctx context.Context, username string) (*Setup, error) {
	enabled, err := m.Enabled(ctx, username)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, ErrAlreadyEnabled
	}
	_, secret, err := m.otp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	codes, err := m.otp.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	return &Setup{
		Secret:       secret,
		ProvisionURI: m.otp.ProvisionURI(secret, username),
		BackupCodes:  codes,
	}, nil
}

// Enable verifies code against the draft secret and, only on success,
// persists the record as enabled. A false return persists nothing. An
// already-enabled user must Disable with a valid code first; Enable never
// replaces an active second factor.
func (m *Manager) Enable(ctx context.Context, username, secret, code string, backupCodes []string) (bool, error) {
	existing, err := m.load(ctx, username)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Enabled {
		return false, ErrAlreadyEnabled
	}
	key, err := otp.DecodeSecret(secret)
	if err != nil {
		return false, fmt.Errorf("decode secret: %w", err)
	}
	ok, counter, err := m.otp.VerifyCode(key, code, m.now())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	rec := &record{
		Username:    username,
		Secret:      secret,
		Enabled:     true,
		BackupCodes: hashCodes(backupCodes),
		LastCounter: counter,
	}
	if err := m.save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyLogin gates a login. Users without an enabled record pass
// unconditionally; enabled users need a current TOTP code or an unused
// backup code. A matched backup code is consumed before returning.
func (m *Manager) VerifyLogin(ctx context.Context, username, code string) (bool, error) {
	rec, err := m.load(ctx, username)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.Enabled {
		return true, nil
	}
	key, err := otp.DecodeSecret(rec.Secret)
	if err != nil {
		return false, fmt.Errorf("decode secret: %w", err)
	}
	ok, counter, err := m.otp.VerifyCode(key, code, m.now())
	if err != nil {
		return false, err
	}
	if ok && counter > rec.LastCounter {
		rec.LastCounter = counter
		if err := m.save(ctx, rec); err != nil {
			return false, err
		}
		return true, nil
	}
	if m.consumeBackupCode(rec, code) {
		if err := m.save(ctx, rec); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Disable removes the record after a valid TOTP or backup code. Requiring a
// code means a stolen session alone cannot switch the factor off.
func (m *Manager) Disable(ctx context.Context, username, code string) (bool, error) {
	rec, err := m.load(ctx, username)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.Enabled {
		return false, ErrNotEnabled
	}
	key, err := otp.DecodeSecret(rec.Secret)
	if err != nil {
		return false, fmt.Errorf("decode secret: %w", err)
	}
	ok, _, err := m.otp.VerifyCode(key, code, m.now())
	if err != nil {
		return false, err
	}
	if !ok && !m.consumeBackupCode(rec, code) {
		return false, nil
	}
	if err := m.cache.Remove(ctx, cachePrefix+username); err != nil {
		return false, fmt.Errorf("remove cached record: %w", err)
	}
	patch := storage.Row{
		"totp_secret":    "",
		"totp_enabled":   false,
		"backup_codes":   "[]",
		"totp_last_used": int64(0),
	}
	if err := m.remote.Update(ctx, storage.TableCredentials, storage.Filter{"username": username}, patch); err != nil {
		m.logger.Warn("two-factor remote disable failed", zap.String("username", username), zap.Error(err))
	}
	return true, nil
}

// RegenerateBackupCodes replaces the backup code set. Only a TOTP code is
// accepted here: a caller holding a lone backup code should not be able to
// mint ten more.
func (m *Manager) RegenerateBackupCodes(ctx context.Context, username, code string) ([]string, error) {
	rec, err := m.load(ctx, username)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Enabled {
		return nil, ErrNotEnabled
	}
	key, err := otp.DecodeSecret(rec.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	ok, counter, err := m.otp.VerifyCode(key, code, m.now())
	if err != nil {
		return nil, err
	}
	if !ok || counter <= rec.LastCounter {
		return nil, nil
	}
	codes, err := m.otp.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	rec.BackupCodes = hashCodes(codes)
	rec.LastCounter = counter
	if err := m.save(ctx, rec); err != nil {
		return nil, err
	}
	return codes, nil
}

// Enabled reports whether the user has an active second factor.
func (m *Manager) Enabled(ctx context.Context, username string) (bool, error) {
	rec, err := m.load(ctx, username)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Enabled, nil
}

func (m *Manager) consumeBackupCode(rec *record, code string) bool {
	want := hashCode(code)
	for i, h := range rec.BackupCodes {
		if h == want {
			rec.BackupCodes = append(rec.BackupCodes[:i], rec.BackupCodes[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) save(ctx context.Context, rec *record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := m.cache.Set(ctx, cachePrefix+rec.Username, raw); err != nil {
		return fmt.Errorf("cache record: %w", err)
	}
	hashes, err := json.Marshal(rec.BackupCodes)
	if err != nil {
		return fmt.Errorf("encode backup codes: %w", err)
	}
	patch := storage.Row{
		"totp_secret":    rec.Secret,
		"totp_enabled":   rec.Enabled,
		"backup_codes":   string(hashes),
		"totp_last_used": rec.LastCounter,
	}
	if err := m.remote.Update(ctx, storage.TableCredentials, storage.Filter{"username": rec.Username}, patch); err != nil {
		m.logger.Warn("two-factor remote write failed", zap.String("username", rec.Username), zap.Error(err))
	}
	return nil
}

// load prefers the cache and falls back to the remote columns, backfilling
// the cache on a remote hit.
func (m *Manager) load(ctx context.Context, username string) (*record, error) {
	raw, found, err := m.cache.Get(ctx, cachePrefix+username)
	if err != nil {
		return nil, fmt.Errorf("read cached record: %w", err)
	}
	if found {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode cached record: %w", err)
		}
		return &rec, nil
	}
	rows, err := m.remote.Query(ctx, storage.TableCredentials, storage.Filter{"username": username})
	if err != nil || len(rows) == 0 {
		return nil, nil
	}
	rec := recordFromRow(username, rows[0])
	if rec == nil {
		return nil, nil
	}
	if raw, err := json.Marshal(rec); err == nil {
		if err := m.cache.Set(ctx, cachePrefix+username, raw); err != nil {
			m.logger.Warn("two-factor cache backfill failed", zap.String("username", username), zap.Error(err))
		}
	}
	return rec, nil
}

func recordFromRow(username string, row storage.Row) *record {
	secret, _ := row["totp_secret"].(string)
	if secret == "" {
		return nil
	}
	enabled, _ := row["totp_enabled"].(bool)
	rec := &record{Username: username, Secret: secret, Enabled: enabled}
	if raw, ok := row["backup_codes"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &rec.BackupCodes)
	}
	switch v := row["totp_last_used"].(type) {
	case int64:
		rec.LastCounter = v
	case int:
		rec.LastCounter = int64(v)
	case float64:
		rec.LastCounter = int64(v)
	}
	return rec
}

func hashCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, hashCode(c))
	}
	return out
}

func hashCode(code string) string {
	h := otp.HashBackupCode(code)
	return hex.EncodeToString(h[:])
}
