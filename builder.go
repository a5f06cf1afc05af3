package credcore

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/axiohq/credcore/internal/audit"
	"github.com/axiohq/credcore/internal/challenge"
	"github.com/axiohq/credcore/internal/credstore"
	"github.com/axiohq/credcore/internal/mailer"
	"github.com/axiohq/credcore/internal/metrics"
	"github.com/axiohq/credcore/internal/otp"
	"github.com/axiohq/credcore/internal/rate"
	"github.com/axiohq/credcore/internal/storage"
	"github.com/axiohq/credcore/internal/syncer"
	"github.com/axiohq/credcore/internal/twofactor"
	"github.com/axiohq/credcore/jwt"
	"github.com/axiohq/credcore/password"
	"github.com/axiohq/credcore/session"
)

// Builder assembles an Engine. Each With method overrides one dependency;
// Build validates the combination and wires the components.
type Builder struct {
	config Config

	cache  storage.Cache
	remote storage.Remote
	mail   mailer.Mailer
	logger *zap.Logger
	sink   audit.Sink
	now    func() time.Time

	built bool
}

// New returns a Builder carrying DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis uses a Redis client as the local cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.cache = storage.NewRedisCache(client, "cc")
	return b
}

// WithCache uses a custom cache implementation.
func (b *Builder) WithCache(cache storage.Cache) *Builder {
	b.cache = cache
	return b
}

// WithPostgres uses a pgx pool as the remote durable store.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.remote = storage.NewPostgres(pool, b.config.RemoteTimeout)
	return b
}

// WithRemote uses a custom remote store implementation.
func (b *Builder) WithRemote(remote storage.Remote) *Builder {
	b.remote = remote
	return b
}

// WithMailer enables email delivery for registration and password reset.
func (b *Builder) WithMailer(m mailer.Mailer) *Builder {
	b.mail = m
	return b
}

// WithLogger injects a structured logger. Default is a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink forwards every audit event to sink after the engine's own
// writes.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine clock, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine. A missing
// cache falls back to an in-process map; a missing remote store degrades the
// engine to cache-only operation.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := b.config
	if cfg.Session.Duration <= 0 {
		cfg.Session.Duration = DefaultConfig().Session.Duration
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	cache := b.cache
	if cache == nil {
		cache = storage.NewMemoryCache()
	}
	remote := b.remote
	if remote == nil {
		remote = storage.Unavailable{}
	}
	mail := b.mail

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	policy := password.DefaultPolicy()
	if cfg.Password.MinLength > 0 {
		policy.MinLength = cfg.Password.MinLength
	}
	if cfg.Password.MaxLength > 0 {
		policy.MaxLength = cfg.Password.MaxLength
	}

	m := metrics.New()

	engine := &Engine{
		config:  cfg,
		cache:   cache,
		remote:  remote,
		mail:    mail,
		logger:  logger,
		metrics: m,
		now:     now,
	}

	engine.creds = credstore.New(cache, remote, hasher, policy, logger, now)
	engine.limiter = rate.New(cache, remote, rate.Config{
		Window:      cfg.RateLimit.Window,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
	}, logger, now)
	engine.sessions = session.NewStore(cache, remote, session.Config{
		Duration:      cfg.Session.Duration,
		RefreshWindow: cfg.Session.RefreshWindow,
	}, logger, now)
	engine.otp = otp.NewManager(otp.Config{
		Issuer:           cfg.TOTP.Issuer,
		Digits:           cfg.TOTP.Digits,
		Period:           cfg.TOTP.Period,
		Algorithm:        cfg.TOTP.Algorithm,
		Skew:             cfg.TOTP.Skew,
		BackupCodeCount:  cfg.TOTP.BackupCodeCount,
		BackupCodeLength: cfg.TOTP.BackupCodeLength,
	})
	engine.twofactor = twofactor.New(cache, remote, engine.otp, logger, now)
	engine.challenges = challenge.New(cache, challenge.Config{
		TTL:         cfg.Challenge.TTL,
		MaxAttempts: cfg.Challenge.MaxAttempts,
		CodeDigits:  cfg.Challenge.CodeDigits,
	}, now)
	engine.audit = audit.NewLog(cache, remote, audit.LogOptions{
		Dispatch:  audit.Config{Enabled: true, BufferSize: cfg.Audit.Buffer, DropIfFull: true},
		ExtraSink: b.sink,
		MaxCached: cfg.Audit.MaxCached,
		Now:       now,
		Logger:    logger,
	})
	engine.syncer = syncer.New(engine.creds, remote, syncer.Config{
		Interval:      cfg.Sync.Interval,
		FocusDebounce: cfg.Sync.FocusDebounce,
		RetryDelay:    cfg.Sync.RetryDelay,
		RetryAttempts: cfg.Sync.RetryAttempts,
	}, logger, m, now)

	if len(cfg.Assertion.Key) > 0 {
		am, err := jwt.NewManager(jwt.Config{
			TTL:    cfg.Assertion.TTL,
			Method: jwt.SigningMethod(cfg.Assertion.Method),
			Issuer: cfg.Assertion.Issuer,
			Key:    cfg.Assertion.Key,
			Leeway: cfg.Assertion.Leeway,
			Now:    now,
		})
		if err != nil {
			return nil, err
		}
		engine.assertions = am
	}

	b.built = true
	return engine, nil
}
