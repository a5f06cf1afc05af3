package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/storage"
)

// ErrTokenGeneration is returned when the platform cannot produce secure
// random bytes. There is no fallback for an environment that cannot do that.
var ErrTokenGeneration = errors.New("session token generation failed")

// Config holds session lifecycle tuning.
type Config struct {
	Duration      time.Duration // default 7 days
	RefreshWindow time.Duration // extend when expiring within this, default 1 day
}

// Store issues and tracks sessions, cache-first with best-effort remote
// mirroring into user_sessions.
type Store struct {
	cache  storage.Cache
	remote storage.Remote
	config Config
	logger *zap.Logger
	now    func() time.Time

	// async runs the background refresh; tests replace it with a
	// synchronous runner.
	async func(func())
}

// NewStore creates a session Store.
func NewStore(cache storage.Cache, remote storage.Remote, cfg Config, logger *zap.Logger, now func() time.Time) *Store {
	if cfg.Duration <= 0 {
		cfg.Duration = 7 * 24 * time.Hour
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		cache:  cache,
		remote: remote,
		config: cfg,
		logger: logger,
		now:    now,
		async:  func(fn func()) { go fn() },
	}
}

// SetAsync replaces the background runner. Tests use a synchronous runner to
// make refresh deterministic.
func (st *Store) SetAsync(run func(func())) {
	st.async = run
}

// Create issues a new session for userID, overwriting any existing one. The
// duration is honored verbatim: zero mints an already-expired grant, which
// the next Validate purges. A negative duration uses the configured default.
func (st *Store) Create(ctx context.Context, userID string, duration time.Duration) (*Session, error) {
	if duration < 0 {
		duration = st.config.Duration
	}
	token, err := NewToken()
	if err != nil {
		return nil, ErrTokenGeneration
	}

	now := st.now()
	s := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		Duration:  duration,
	}
	if err := st.put(ctx, s); err != nil {
		return nil, err
	}

	// Overwrite semantics remotely as well: drop prior rows, then insert.
	if err := st.remote.Delete(ctx, storage.TableSessions, storage.Filter{"user_id": userID}); err != nil {
		st.logger.Debug("remote session cleanup failed", zap.Error(err))
	}
	if err := st.remote.Insert(ctx, storage.TableSessions, storage.Row{
		"token":      s.Token,
		"user_id":    s.UserID,
		"created_at": s.CreatedAt,
		"expires_at": s.ExpiresAt,
	}); err != nil {
		st.logger.Debug("remote session write failed", zap.Error(err))
	}
	return s, nil
}

// Get returns the user's session or nil when absent. Absence is a normal
// negative result, not an error.
func (st *Store) Get(ctx context.Context, userID string) (*Session, error) {
	data, ok, err := st.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

// Validate reports whether userID holds a live session. Expired sessions are
// purged. A live session inside the refresh window is extended in the
// background without blocking the result.
func (st *Store) Validate(ctx context.Context, userID string) (bool, error) {
	s, err := st.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}

	now := st.now()
	if !s.Valid(now) {
		if err := st.Invalidate(ctx, userID); err != nil {
			return false, err
		}
		return false, nil
	}

	if s.NearExpiry(now, st.config.RefreshWindow) {
		st.async(func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := st.Refresh(refreshCtx, userID); err != nil {
				st.logger.Debug("background session refresh failed", zap.Error(err))
			}
		})
	}
	return true, nil
}

// Refresh extends the session's expiry by its original duration from now.
// With no session present it behaves as Create.
func (st *Store) Refresh(ctx context.Context, userID string) (*Session, error) {
	s, err := st.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return st.Create(ctx, userID, st.config.Duration)
	}

	duration := s.Duration
	if duration <= 0 {
		duration = st.config.Duration
	}
	s.ExpiresAt = st.now().Add(duration)
	if err := st.put(ctx, s); err != nil {
		return nil, err
	}

	if err := st.remote.Update(ctx, storage.TableSessions,
		storage.Filter{"token": s.Token},
		storage.Row{"expires_at": s.ExpiresAt},
	); err != nil {
		st.logger.Debug("remote session refresh failed", zap.Error(err))
	}
	return s, nil
}

// Invalidate removes the user's session from the cache and best-effort
// revokes it remotely (by token, for cross-device revocation and audit).
func (st *Store) Invalidate(ctx context.Context, userID string) error {
	s, err := st.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := st.cache.Remove(ctx, cacheKey(userID)); err != nil {
		return err
	}
	if s != nil {
		if err := st.remote.Delete(ctx, storage.TableSessions, storage.Filter{"token": s.Token}); err != nil {
			st.logger.Debug("remote session invalidation failed", zap.Error(err))
		}
	}
	return nil
}

func (st *Store) put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return st.cache.Set(ctx, cacheKey(s.UserID), data)
}

func cacheKey(userID string) string {
	return "session:" + userID
}
