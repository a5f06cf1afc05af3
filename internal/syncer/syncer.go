package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/storage"
)

// Config bounds the sync schedule and the push retry policy.
type Config struct {
	// Interval between automatic cycles, and the cooldown after a cycle
	// exhausts its retries.
	Interval time.Duration

	// FocusDebounce collapses bursts of focus triggers into one cycle.
	FocusDebounce time.Duration

	RetryDelay    time.Duration
	RetryAttempts uint64
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		FocusDebounce: 60 * time.Second,
		RetryDelay:    30 * time.Second,
		RetryAttempts: 5,
	}
}

// Syncer owns the cache→remote reconciliation loop. All state lives on the
// struct; the clock and the async runner are injectable for tests.
type Syncer struct {
	creds   *credstore.Store
	remote  storage.Remote
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	async   func(func())

	inFlight atomic.Bool
	started  atomic.Bool

	mu            sync.Mutex
	cooldownUntil time.Time
	lastFocus     time.Time

	stop chan struct{}
	done chan struct{}
}

func New(creds *credstore.Store, remote storage.Remote, cfg Config, logger *zap.Logger, m *metrics.Metrics, now func() time.Time) *Syncer {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FocusDebounce <= 0 {
		cfg.FocusDebounce = def.FocusDebounce
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		creds:   creds,
		remote:  remote,
		config:  cfg,
		logger:  logger,
		metrics: m,
		now:     now,
		async:   func(fn func()) { go fn() },
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetAsync replaces the goroutine runner. Tests pass a synchronous runner.
func (s *Syncer) SetAsync(run func(func())) { s.async = run }

// Start launches the interval loop. Repeated calls are no-ops.
func (s *Syncer) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
}

// Stop terminates the loop and runs one best-effort flush cycle.
func (s *Syncer) Stop(ctx context.Context) {
	if s.started.CompareAndSwap(false, true) {
		// Never started; nothing to wind down.
		close(s.stop)
		close(s.done)
	} else {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
		<-s.done
	}
	if err := s.Sync(ctx); err != nil {
		s.logger.Debug("flush on stop failed", zap.Error(err))
	}
}

func (s *Syncer) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
			if err := s.Sync(ctx); err != nil {
				s.logger.Debug("interval sync failed", zap.Error(err))
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// TriggerLogin schedules an immediate cycle off the caller's goroutine.
func (s *Syncer) TriggerLogin() {
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
		defer cancel()
		if err := s.Sync(ctx); err != nil {
			s.logger.Debug("login sync failed", zap.Error(err))
		}
	})
}

// TriggerFocus schedules a cycle unless one ran within the debounce window.
func (s *Syncer) TriggerFocus() {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastFocus) < s.config.FocusDebounce {
		s.mu.Unlock()
		return
	}
	s.lastFocus = now
	s.mu.Unlock()
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
		defer cancel()
		if err := s.Sync(ctx); err != nil {
			s.logger.Debug("focus sync failed", zap.Error(err))
		}
	})
}

// Sync runs one reconciliation cycle. A cycle already in flight makes this a
// no-op; an unreachable remote aborts silently. Push failures retry with a
// constant delay, then put the syncer in cooldown for one full interval.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	cooling := s.now().Before(s.cooldownUntil)
	s.mu.Unlock()
	if cooling {
		return nil
	}

	if err := s.remote.Ping(ctx); err != nil {
		s.logger.Debug("remote unreachable, skipping sync", zap.Error(err))
		return nil
	}
	s.metrics.Inc(metrics.SyncCycles)

	backoff := retry.WithMaxRetries(s.config.RetryAttempts, retry.NewConstant(s.config.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.push(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.mu.Lock()
		s.cooldownUntil = s.now().Add(s.config.Interval)
		s.mu.Unlock()
		s.metrics.Inc(metrics.SyncFailures)
		s.logger.Warn("sync cycle failed, cooling down",
			zap.Duration("cooldown", s.config.Interval), zap.Error(err))
		return fmt.Errorf("sync push: %w", err)
	}
	return nil
}

// PendingSync reports how many cached records the remote store is missing.
func (s *Syncer) PendingSync(ctx context.Context) (int, error) {
	profiles, credentials, err := s.diff(ctx)
	if err != nil {
		return 0, err
	}
	return len(profiles) + len(credentials), nil
}

// push uploads cache-only records. Existing remote rows are left untouched;
// an email already claimed by a different remote username is a collision and
// the record is skipped, not merged.
func (s *Syncer) push(ctx context.Context) error {
	profiles, credentials, err := s.diff(ctx)
	if err != nil {
		return err
	}
	for i := range profiles {
		if err := s.remote.Insert(ctx, storage.TableProfiles, profiles[i].Row()); err != nil {
			return fmt.Errorf("push profile %q: %w", profiles[i].Username, err)
		}
		s.metrics.Inc(metrics.SyncPushedRecords)
	}
	for i := range credentials {
		if err := s.remote.Insert(ctx, storage.TableCredentials, credentials[i].Row()); err != nil {
			return fmt.Errorf("push credential %q: %w", credentials[i].Username, err)
		}
		s.metrics.Inc(metrics.SyncPushedRecords)
	}
	return nil
}

// diff returns the cached profiles and credentials absent from the remote
// store, with collisions filtered out.
func (s *Syncer) diff(ctx context.Context) ([]credstore.Profile, []credstore.Record, error) {
	cachedProfiles, err := s.creds.Profiles(ctx)
	if err != nil {
		return nil, nil, err
	}
	cachedCreds, err := s.creds.All(ctx)
	if err != nil {
		return nil, nil, err
	}

	// Count fast path: nothing cached, or nothing to compare against.
	if len(cachedProfiles) == 0 && len(cachedCreds) == 0 {
		return nil, nil, nil
	}

	remoteProfiles, err := s.remote.Query(ctx, storage.TableProfiles, nil)
	if err != nil {
		return nil, nil, err
	}
	remoteCreds, err := s.remote.Query(ctx, storage.TableCredentials, nil)
	if err != nil {
		return nil, nil, err
	}

	profileNames, profileEmails := indexRows(remoteProfiles)
	credNames, credEmails := indexRows(remoteCreds)

	var missingProfiles []credstore.Profile
	for _, p := range cachedProfiles {
		if profileNames[p.Username] {
			continue
		}
		if profileEmails[p.Email] {
			s.logger.Warn("profile email collision, skipping push",
				zap.String("username", p.Username), zap.String("email", p.Email))
			continue
		}
		missingProfiles = append(missingProfiles, p)
	}

	var missingCreds []credstore.Record
	for _, c := range cachedCreds {
		if credNames[c.Username] {
			continue
		}
		if credEmails[c.Email] {
			s.logger.Warn("credential email collision, skipping push",
				zap.String("username", c.Username), zap.String("email", c.Email))
			continue
		}
		missingCreds = append(missingCreds, c)
	}
	return missingProfiles, missingCreds, nil
}

func indexRows(rows []storage.Row) (names, emails map[string]bool) {
	names = make(map[string]bool, len(rows))
	emails = make(map[string]bool, len(rows))
	for _, row := range rows {
		if v, ok := row["username"].(string); ok {
			names[v] = true
		}
		if v, ok := row["email"].(string); ok {
			emails[v] = true
		}
	}
	return names, emails
}
