package rate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/storage"
)

// ErrRateLimited is returned by the engine when an identifier exceeds the
// attempt budget.
var ErrRateLimited = errors.New("too many failed attempts")

// Config holds limiter tuning.
type Config struct {
	Window      time.Duration // sliding window, default 15 minutes
	MaxAttempts int           // failures inside the window before blocking, default 5
}

// Limiter tracks failed authentication attempts per identifier inside a
// sliding time window.
type Limiter struct {
	cache  storage.Cache
	remote storage.Remote
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Limiter. A nil now defaults to time.Now.
func New(cache storage.Cache, remote storage.Remote, cfg Config, logger *zap.Logger, now func() time.Time) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{cache: cache, remote: remote, config: cfg, logger: logger, now: now}
}

// IsLimited reports whether identifier has exhausted its attempt budget.
func (l *Limiter) IsLimited(ctx context.Context, identifier string) (bool, error) {
	window, err := l.window(ctx, normalize(identifier))
	if err != nil {
		return false, err
	}
	return len(window) >= l.config.MaxAttempts, nil
}

// RetryAfter reports how long until the oldest in-window failure ages out,
// read from the same attempt source IsLimited consults. Zero means the
// identifier is not currently blocked.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string) (time.Duration, error) {
	window, err := l.window(ctx, normalize(identifier))
	if err != nil {
		return 0, err
	}
	if len(window) < l.config.MaxAttempts {
		return 0, nil
	}
	oldest := window[0]
	remaining := oldest.Add(l.config.Window).Sub(l.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// RecordFailure appends a failure timestamp to the cache window and
// best-effort logs the attempt remotely.
func (l *Limiter) RecordFailure(ctx context.Context, identifier string) error {
	id := normalize(identifier)
	now := l.now()

	window, err := l.cachedWindow(ctx, id)
	if err != nil {
		return err
	}
	window = append(window, now)
	if err := l.storeWindow(ctx, id, window); err != nil {
		return err
	}

	if err := l.remote.Insert(ctx, storage.TableLoginAttempts, storage.Row{
		"identifier":   id,
		"attempted_at": now,
	}); err != nil {
		l.logger.Debug("remote attempt log failed", zap.String("identifier", id), zap.Error(err))
	}
	return nil
}

// RecordSuccess clears the window after a successful authentication.
func (l *Limiter) RecordSuccess(ctx context.Context, identifier string) error {
	return l.Reset(ctx, identifier)
}

// Reset clears the window entirely, cache and (best-effort) remote. Used
// after password resets so a mistyping user is not locked out of the account
// they just recovered.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	id := normalize(identifier)
	if err := l.cache.Remove(ctx, cacheKey(id)); err != nil {
		return err
	}
	if err := l.remote.Delete(ctx, storage.TableLoginAttempts, storage.Filter{"identifier": id}); err != nil {
		l.logger.Debug("remote attempt reset failed", zap.String("identifier", id), zap.Error(err))
	}
	return nil
}

// window returns the in-window failure timestamps, oldest first. The remote
// attempt log is preferred (cross-device); the cache window is the per-device
// fallback when the remote is unreachable.
func (l *Limiter) window(ctx context.Context, id string) ([]time.Time, error) {
	if stamps, err := l.remoteWindow(ctx, id); err == nil {
		return stamps, nil
	} else if !errors.Is(err, storage.ErrRemoteUnavailable) {
		return nil, err
	}
	return l.cachedWindow(ctx, id)
}

func (l *Limiter) remoteWindow(ctx context.Context, id string) ([]time.Time, error) {
	rows, err := l.remote.Query(ctx, storage.TableLoginAttempts, storage.Filter{"identifier": id})
	if err != nil {
		return nil, err
	}
	cutoff := l.now().Add(-l.config.Window)
	var stamps []time.Time
	for _, row := range rows {
		if ts, ok := row["attempted_at"].(time.Time); ok && ts.After(cutoff) {
			stamps = append(stamps, ts)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps, nil
}

// cachedWindow loads, prunes, and returns the in-window timestamps, oldest
// first. Pruning is persisted opportunistically so the list cannot grow
// without bound.
func (l *Limiter) cachedWindow(ctx context.Context, id string) ([]time.Time, error) {
	data, ok, err := l.cache.Get(ctx, cacheKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var stamps []time.Time
	if err := json.Unmarshal(data, &stamps); err != nil {
		return nil, nil
	}

	cutoff := l.now().Add(-l.config.Window)
	pruned := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	if len(pruned) != len(stamps) {
		if err := l.storeWindow(ctx, id, pruned); err != nil {
			return nil, err
		}
	}
	return pruned, nil
}

func (l *Limiter) storeWindow(ctx context.Context, id string, window []time.Time) error {
	if len(window) == 0 {
		return l.cache.Remove(ctx, cacheKey(id))
	}
	data, err := json.Marshal(window)
	if err != nil {
		return err
	}
	return l.cache.Set(ctx, cacheKey(id), data)
}

func cacheKey(id string) string {
	return "ratelimit:" + id
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
