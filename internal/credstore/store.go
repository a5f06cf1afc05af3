package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/storage"
	"github.com/axiohq/credcore/password"
)

var (
	// ErrNotFound is returned by mutation paths that require an existing
	// record. Read paths report absence as a nil/false result instead.
	ErrNotFound = errors.New("credential not found")

	// ErrDuplicate is returned when a username or email is already bound to
	// a credential. Uniqueness is best-effort across cache and remote.
	ErrDuplicate = errors.New("credential already exists")
)

const (
	credentialsKey = "credentials"
	profilesKey    = "profiles"
)

// Record is one authentication principal.
type Record struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Salt         string    `json:"salt"`
	AxiNumber    int64     `json:"axi_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the slim profile row registration creates next to a credential.
// Profile lifecycle beyond creation belongs to the host application.
type Profile struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AxiNumber int64     `json:"axi_number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns credential and profile records.
type Store struct {
	cache  storage.Cache
	remote storage.Remote
	hasher *password.Hasher
	policy password.Policy
	logger *zap.Logger
	now    func() time.Time
}

// New creates a credential Store.
func New(cache storage.Cache, remote storage.Remote, hasher *password.Hasher, policy password.Policy, logger *zap.Logger, now func() time.Time) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Store{cache: cache, remote: remote, hasher: hasher, policy: policy, logger: logger, now: now}
}

// Create validates the password, derives hash and salt, and stores a new
// credential: cache first, remote best-effort.
func (s *Store) Create(ctx context.Context, username, email, pw string, axiNumber int64) (*Record, error) {
	if err := s.policy.Check(pw); err != nil {
		return nil, err
	}

	username = normalize(username)
	email = normalize(email)
	if existing, err := s.find(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrDuplicate
	}
	if existing, err := s.find(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrDuplicate
	}

	salt, err := password.GenerateSalt()
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(pw, salt)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		UserID:       uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Salt:         salt,
		AxiNumber:    axiNumber,
		CreatedAt:    s.now(),
	}
	if err := s.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Exists reports whether username or email is already taken, consulting the
// cache and the remote store.
func (s *Store) Exists(ctx context.Context, username, email string) (bool, error) {
	if existing, err := s.find(ctx, normalize(username)); err != nil {
		return false, err
	} else if existing != nil {
		return true, nil
	}
	existing, err := s.find(ctx, normalize(email))
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// HashPassword validates pw against the policy and returns a fresh
// digest/salt pair without storing anything.
func (s *Store) HashPassword(pw string) (digest, salt string, err error) {
	if err := s.policy.Check(pw); err != nil {
		return "", "", err
	}
	salt, err = password.GenerateSalt()
	if err != nil {
		return "", "", err
	}
	digest, err = s.hasher.Hash(pw, salt)
	if err != nil {
		return "", "", err
	}
	return digest, salt, nil
}

// Insert stores an already-hashed record. Used by Create and by the
// registration flow, which hashes at challenge time so plaintext never
// outlives the initial request.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	records, err := s.All(ctx)
	if err != nil {
		return err
	}
	records = append(records, *rec)
	if err := s.storeList(ctx, credentialsKey, records); err != nil {
		return err
	}

	if err := s.remote.Insert(ctx, storage.TableCredentials, credentialRow(rec)); err != nil {
		s.logger.Warn("remote credential write failed, cache remains source of truth",
			zap.String("username", rec.Username), zap.Error(err))
	}
	return nil
}

// Verify checks identifier (username, or email when it contains '@') and
// password. Absence and hash mismatch are both (nil, false, nil).
func (s *Store) Verify(ctx context.Context, identifier, pw string) (*Record, bool, error) {
	rec, err := s.find(ctx, identifier)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}

	ok, err := s.hasher.Verify(pw, rec.PasswordHash)
	if err != nil || !ok {
		return nil, false, err
	}

	if needs, _ := s.hasher.NeedsRehash(rec.PasswordHash); needs {
		if err := s.replacePassword(ctx, rec, pw); err != nil {
			s.logger.Debug("hash upgrade skipped", zap.Error(err))
		}
	}
	return rec, true, nil
}

// UpdatePassword re-validates strength and replaces hash and salt for the
// named user: cache first, remote best-effort.
func (s *Store) UpdatePassword(ctx context.Context, username, newPw string) error {
	if err := s.policy.Check(newPw); err != nil {
		return err
	}
	rec, err := s.find(ctx, normalize(username))
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	return s.replacePassword(ctx, rec, newPw)
}

// ResetByEmail is UpdatePassword keyed by email. When no credential exists
// but a profile with that email does, a fresh credential is synthesized and
// bound to the profile's identity.
func (s *Store) ResetByEmail(ctx context.Context, email, newPw string) error {
	if err := s.policy.Check(newPw); err != nil {
		return err
	}
	email = normalize(email)

	rec, err := s.find(ctx, email)
	if err != nil {
		return err
	}
	if rec != nil {
		return s.replacePassword(ctx, rec, newPw)
	}

	profile, err := s.ProfileByEmail(ctx, email)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrNotFound
	}

	salt, err := password.GenerateSalt()
	if err != nil {
		return err
	}
	digest, err := s.hasher.Hash(newPw, salt)
	if err != nil {
		return err
	}
	return s.Insert(ctx, &Record{
		UserID:       profile.UserID,
		Username:     profile.Username,
		Email:        profile.Email,
		PasswordHash: digest,
		Salt:         salt,
		AxiNumber:    profile.AxiNumber,
		CreatedAt:    s.now(),
	})
}

// All returns every cached credential record. Used by the sync orchestrator.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.loadList(ctx, credentialsKey, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateProfile stores a profile record, cache first, remote best-effort.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return err
	}
	profiles = append(profiles, *p)
	if err := s.storeList(ctx, profilesKey, profiles); err != nil {
		return err
	}

	if err := s.remote.Insert(ctx, storage.TableProfiles, profileRow(p)); err != nil {
		s.logger.Warn("remote profile write failed, cache remains source of truth",
			zap.String("username", p.Username), zap.Error(err))
	}
	return nil
}

// Profiles returns every cached profile record.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := s.loadList(ctx, profilesKey, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ProfileByEmail finds a profile locally, then remotely with cache backfill.
func (s *Store) ProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	email = normalize(email)
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].Email == email {
			return &profiles[i], nil
		}
	}

	rows, err := s.remote.Query(ctx, storage.TableProfiles, storage.Filter{"email": email})
	if err != nil || len(rows) == 0 {
		return nil, nil
	}
	p := profileFromRow(rows[0])
	profiles = append(profiles, p)
	if err := s.storeList(ctx, profilesKey, profiles); err != nil {
		return nil, err
	}
	return &p, nil
}

// NextAxiNumber returns the next value of the member number sequence,
// best-effort across cache and remote.
func (s *Store) NextAxiNumber(ctx context.Context) (int64, error) {
	var max int64
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range profiles {
		if p.AxiNumber > max {
			max = p.AxiNumber
		}
	}
	if rows, err := s.remote.Query(ctx, storage.TableProfiles, nil); err == nil {
		for _, row := range rows {
			if n := asInt64(row["axi_number"]); n > max {
				max = n
			}
		}
	}
	return max + 1, nil
}

// find resolves identifier against the cache (case-insensitive username OR
// email), then the remote store, backfilling the cache on a remote hit.
func (s *Store) find(ctx context.Context, identifier string) (*Record, error) {
	identifier = normalize(identifier)
	if identifier == "" {
		return nil, nil
	}

	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Username == identifier || records[i].Email == identifier {
			return &records[i], nil
		}
	}

	column := "username"
	if strings.Contains(identifier, "@") {
		column = "email"
	}
	rows, err := s.remote.Query(ctx, storage.TableCredentials, storage.Filter{column: identifier})
	if err != nil {
		if errors.Is(err, storage.ErrRemoteUnavailable) {
			return nil, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rec := credentialFromRow(rows[0])
	records = append(records, rec)
	if err := s.storeList(ctx, credentialsKey, records); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) replacePassword(ctx context.Context, rec *Record, pw string) error {
	salt, err := password.GenerateSalt()
	if err != nil {
		return err
	}
	digest, err := s.hasher.Hash(pw, salt)
	if err != nil {
		return err
	}

	records, err := s.All(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].UserID == rec.UserID {
			records[i].PasswordHash = digest
			records[i].Salt = salt
		}
	}
	if err := s.storeList(ctx, credentialsKey, records); err != nil {
		return err
	}
	rec.PasswordHash = digest
	rec.Salt = salt

	if err := s.remote.Update(ctx, storage.TableCredentials,
		storage.Filter{"username": rec.Username},
		storage.Row{"password_hash": digest, "salt": salt},
	); err != nil {
		s.logger.Warn("remote password update failed, cache remains source of truth",
			zap.String("username", rec.Username), zap.Error(err))
	}
	return nil
}

func (s *Store) loadList(ctx context.Context, key string, out any) error {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("discarding corrupt cache list", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Store) storeList(ctx context.Context, key string, list any) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, data)
}

// Row returns the record's remote-store column mapping.
func (r *Record) Row() storage.Row { return credentialRow(r) }

// Row returns the profile's remote-store column mapping.
func (p *Profile) Row() storage.Row { return profileRow(p) }

func credentialRow(rec *Record) storage.Row {
	return storage.Row{
		"user_id":       rec.UserID,
		"username":      rec.Username,
		"email":         rec.Email,
		"password_hash": rec.PasswordHash,
		"salt":          rec.Salt,
		"axi_number":    rec.AxiNumber,
		"created_at":    rec.CreatedAt,
	}
}

func credentialFromRow(row storage.Row) Record {
	rec := Record{
		UserID:       stringAt(row, "user_id"),
		Username:     normalize(stringAt(row, "username")),
		Email:        normalize(stringAt(row, "email")),
		PasswordHash: stringAt(row, "password_hash"),
		Salt:         stringAt(row, "salt"),
		AxiNumber:    asInt64(row["axi_number"]),
	}
	if ts, ok := row["created_at"].(time.Time); ok {
		rec.CreatedAt = ts
	}
	return rec
}

func profileRow(p *Profile) storage.Row {
	return storage.Row{
		"user_id":    p.UserID,
		"username":   p.Username,
		"email":      p.Email,
		"axi_number": p.AxiNumber,
		"created_at": p.CreatedAt,
	}
}

func profileFromRow(row storage.Row) Profile {
	p := Profile{
		UserID:    stringAt(row, "user_id"),
		Username:  normalize(stringAt(row, "username")),
		Email:     normalize(stringAt(row, "email")),
		AxiNumber: asInt64(row["axi_number"]),
	}
	if ts, ok := row["created_at"].(time.Time); ok {
		p.CreatedAt = ts
	}
	return p
}

func stringAt(row storage.Row, key string) string {
	s, _ := row[key].(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
